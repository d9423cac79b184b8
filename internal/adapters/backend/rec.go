package backend

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/frame"
)

// RecPayload es el cuerpo de /rec. El orden de los campos es el canónico que
// espera el backend y encoding/json lo respeta.
type RecPayload struct {
	Date    string  `json:"date"`
	UUID    string  `json:"uuid"`
	Origin  string  `json:"origin"`
	Escrow  string  `json:"escrow"`
	Wallet  string  `json:"wallet"`
	Accept  string  `json:"accept"`
	Period  float64 `json:"period"`
	Asset   int     `json:"asset"`
	Type    int     `json:"type"`
	Ask     float64 `json:"ask"`
	Bid     float64 `json:"bid"`
	Stp     float64 `json:"stp"`
	Lmt     float64 `json:"lmt"`
	GTD     string  `json:"gtd"`
	Partial bool    `json:"partial"`
	Public  bool    `json:"public"`
	Tao     float64 `json:"tao"`
	Alpha   float64 `json:"alpha"`
	Price   float64 `json:"price"`
	Status  int     `json:"status"`
}

// BuildRecPayload arma el payload canónico. gtd vacío pasa a "gtc".
func BuildRecPayload(o domain.Order) RecPayload {
	gtd := o.GTD
	if gtd == "" {
		gtd = domain.GTC
	}
	return RecPayload{
		Date:    o.Date,
		UUID:    o.UUID,
		Origin:  o.Origin,
		Escrow:  o.Escrow,
		Wallet:  o.Wallet,
		Accept:  o.Accept,
		Period:  finite(o.Period),
		Asset:   o.Asset,
		Type:    int(o.Type),
		Ask:     finite(o.Ask),
		Bid:     finite(o.Bid),
		Stp:     finite(o.Stp),
		Lmt:     finite(o.Lmt),
		GTD:     gtd,
		Partial: o.Partial,
		Public:  o.Public,
		Tao:     finite(o.Tao),
		Alpha:   finite(o.Alpha),
		Price:   finite(o.Price),
		Status:  int(o.Status),
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// DecodeRecBody interpreta el body de una respuesta 2xx de /rec. Si el JSON
// es un string se usa tal cual; si no, el texto crudo.
func DecodeRecBody(body []byte) (domain.RecResult, bool) {
	text := strings.TrimSpace(string(body))
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		text = s
	}
	return ParseRecResponse(text)
}

// ParseRecResponse decodifica la respuesta legacy "['msg', tao, alpha, price, status]".
// Las comillas simples se sustituyen por dobles antes de parsear: un
// apóstrofe dentro del mensaje rompe el parseo. status solo se toma si es entero.
func ParseRecResponse(text string) (domain.RecResult, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "[") {
		return domain.RecResult{}, false
	}
	var parsed []any
	if err := json.Unmarshal([]byte(strings.ReplaceAll(trimmed, "'", `"`)), &parsed); err != nil {
		return domain.RecResult{}, false
	}
	if len(parsed) < 4 {
		return domain.RecResult{}, false
	}

	res := domain.RecResult{
		Message: frame.Text(parsed[0]),
		Tao:     frame.Number(parsed[1]),
		Alpha:   frame.Number(parsed[2]),
		Price:   frame.Number(parsed[3]),
	}
	if len(parsed) >= 5 {
		if n, ok := integral(parsed[4]); ok {
			res.Status = domain.Status(n)
			res.HasStatus = true
		}
	}
	return res, true
}

// integral convierte v a entero con las reglas laxas del backend: null y ""
// cuentan como 0, los strings se parsean, los floats con decimales no valen.
func integral(v any) (int, bool) {
	var n float64
	switch x := v.(type) {
	case nil:
		n = 0
	case float64:
		n = x
	case bool:
		if x {
			n = 1
		}
	case string:
		s := strings.TrimSpace(x)
		if s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, false
			}
			n = f
		}
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return 0, false
	}
	return int(n), true
}
