package domain

import "time"

// DisplayStatus computes the status shown for an order without touching the
// stored record. Only open orders are overridden, with precedence
// expired > stopped > open. prices is keyed by asset.
func DisplayStatus(o Order, prices map[int]float64, now time.Time) Status {
	if o.Status != StatusOpen {
		return o.Status
	}

	if gtd, ok := ParseTime(o.GTD); ok && !now.Before(gtd) {
		return StatusExpired
	}

	if o.Stp > 0 {
		market := prices[o.Asset]
		if market > 0 {
			if o.Type == TypeSell && market <= o.Stp {
				return StatusStopped
			}
			if o.Type == TypeBuy && market >= o.Stp {
				return StatusStopped
			}
		}
	}

	return StatusOpen
}
