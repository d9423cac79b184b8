package domain

// OrderUpdate is a partial edit of an open order. Nil fields are left alone.
type OrderUpdate struct {
	Ask     *float64 `json:"ask,omitempty"`
	Bid     *float64 `json:"bid,omitempty"`
	Stp     *float64 `json:"stp,omitempty"`
	Lmt     *float64 `json:"lmt,omitempty"`
	GTD     *string  `json:"gtd,omitempty"`
	Partial *bool    `json:"partial,omitempty"`
	Public  *bool    `json:"public,omitempty"`
	Accept  *string  `json:"accept,omitempty"`
	Period  *float64 `json:"period,omitempty"`
	Tao     *float64 `json:"tao,omitempty"`
	Alpha   *float64 `json:"alpha,omitempty"`
	Price   *float64 `json:"price,omitempty"`
}

// Apply writes the set fields onto o.
func (u OrderUpdate) Apply(o *Order) {
	setFloat(&o.Ask, u.Ask)
	setFloat(&o.Bid, u.Bid)
	setFloat(&o.Stp, u.Stp)
	setFloat(&o.Lmt, u.Lmt)
	setFloat(&o.Period, u.Period)
	setFloat(&o.Tao, u.Tao)
	setFloat(&o.Alpha, u.Alpha)
	setFloat(&o.Price, u.Price)
	if u.GTD != nil {
		o.GTD = *u.GTD
	}
	if u.Accept != nil {
		o.Accept = *u.Accept
	}
	if u.Partial != nil {
		o.Partial = *u.Partial
	}
	if u.Public != nil {
		o.Public = *u.Public
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// FillBlanks copies fields from base wherever o has a zero value. Status and
// uuid are never taken from base.
func (o Order) FillBlanks(base Order) Order {
	out := o
	fillText(&out.Date, base.Date)
	fillText(&out.Origin, base.Origin)
	fillText(&out.Escrow, base.Escrow)
	fillText(&out.Wallet, base.Wallet)
	fillText(&out.Accept, base.Accept)
	fillText(&out.GTD, base.GTD)
	fillNumber(&out.Period, base.Period)
	fillNumber(&out.Ask, base.Ask)
	fillNumber(&out.Bid, base.Bid)
	fillNumber(&out.Stp, base.Stp)
	fillNumber(&out.Lmt, base.Lmt)
	fillNumber(&out.Tao, base.Tao)
	fillNumber(&out.Alpha, base.Alpha)
	fillNumber(&out.Price, base.Price)
	if out.Asset == 0 {
		out.Asset = base.Asset
	}
	if out.Type == 0 {
		out.Type = base.Type
	}
	return out
}

func fillText(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func fillNumber(dst *float64, v float64) {
	if *dst == 0 {
		*dst = v
	}
}
