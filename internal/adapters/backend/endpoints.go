package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/frame"
)

// FetchSettings implementa ports.Backend. Acepta el array o el array
// serializado como string. Ante cualquier fallo devuelve los defaults.
func (c *Client) FetchSettings(ctx context.Context) (domain.Settings, error) {
	body, err := c.get(ctx, c.baseURL+"/ofm")
	if err != nil {
		return domain.DefaultSettings(), fmt.Errorf("backend.FetchSettings: %w", err)
	}
	v, ok := frame.DecodeValue(body)
	arr, isArr := v.([]any)
	if !ok || !isArr || len(arr) < 3 {
		return domain.DefaultSettings(), fmt.Errorf("backend.FetchSettings: unexpected payload %q", truncate(string(body), 80))
	}
	return domain.Settings{
		OpenMax: frame.Number(arr[0]),
		OpenMin: frame.Number(arr[1]),
		FillMin: frame.Number(arr[2]),
	}, nil
}

// FetchPrices implementa ports.Backend. Precios ≤ 0 se descartan.
func (c *Client) FetchPrices(ctx context.Context) (map[int]float64, error) {
	body, err := c.get(ctx, c.baseURL+"/price")
	if err != nil {
		return nil, fmt.Errorf("backend.FetchPrices: %w", err)
	}
	v, _ := frame.DecodeValue(body)
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("backend.FetchPrices: unexpected payload %q", truncate(string(body), 80))
	}

	prices := make(map[int]float64, len(obj))
	for key, raw := range obj {
		asset, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if p := frame.Number(raw); p > 0 {
			prices[asset] = p
		}
	}
	return prices, nil
}

// FetchEscrowRecord implementa ports.Backend. Sin escrow devuelve la
// plantilla por defecto del backend; cualquier fallo da un registro vacío.
func (c *Client) FetchEscrowRecord(ctx context.Context, escrow string) domain.Order {
	u := c.baseURL + "/dbjson"
	if escrow != "" {
		u += "?" + url.Values{"escrow": {escrow}}.Encode()
	}
	body, err := c.get(ctx, u)
	if err != nil {
		slog.Debug("dbjson fetch failed", "escrow", escrow, "err", err)
		return domain.Order{}
	}

	v, _ := frame.DecodeValue(body)
	switch rec := v.(type) {
	case map[string]any:
		return frame.Normalize(rec)
	case []any:
		if len(rec) > 0 {
			if m, ok := rec[0].(map[string]any); ok {
				return frame.Normalize(m)
			}
		}
	}
	return domain.Order{}
}

// LookupOrder implementa ports.Backend: busca una orden compartida por uuid.
func (c *Client) LookupOrder(ctx context.Context, uuid string) ([]domain.Order, error) {
	body, err := c.get(ctx, c.baseURL+"/sql?"+url.Values{"uuid": {uuid}}.Encode())
	if err != nil {
		return nil, fmt.Errorf("backend.LookupOrder: %w", err)
	}
	v, ok := frame.DecodeValue(body)
	if !ok {
		return nil, fmt.Errorf("backend.LookupOrder: unexpected payload %q", truncate(string(body), 80))
	}
	switch rec := v.(type) {
	case []any:
		return frame.Records(rec), nil
	case map[string]any:
		return frame.Records([]any{rec}), nil
	}
	return nil, nil
}

// PostRecord implementa ports.Backend. Se envía una sola vez.
func (c *Client) PostRecord(ctx context.Context, o domain.Order) (domain.RecResult, error) {
	body, err := c.postOnce(ctx, c.baseURL+"/rec", BuildRecPayload(o))
	if err != nil {
		return domain.RecResult{}, fmt.Errorf("backend.PostRecord: %w", err)
	}
	res, _ := DecodeRecBody(body)
	return res, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
