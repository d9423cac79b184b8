package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "http://127.0.0.1:8000"

	// El backend no documenta límites; 10/s con burst 5 es conservador.
	ratePerSec = 10
	rateBurst  = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// ErrUnreachable se devuelve cuando el POST ni siquiera llega al servidor.
var ErrUnreachable = errors.New("cannot connect to server; it may be unavailable or the network is down")

// APIError es una respuesta no-2xx, con el mensaje ya extraído del body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Client es el HTTP client del backend con rate limiting y retries.
type Client struct {
	http      *http.Client
	baseURL   string
	limiter   *rate.Limiter
	retryWait time.Duration
}

// NewClient crea un Client contra baseURL. Si está vacío usa el backend local.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		limiter:   rate.NewLimiter(ratePerSec, rateBurst),
		retryWait: baseRetryWait,
	}
}

// WithRetryWait ajusta la espera base entre reintentos (tests).
func (c *Client) WithRetryWait(d time.Duration) *Client {
	c.retryWait = d
	return c
}

// get hace un GET con rate limiting y retries; devuelve el body crudo.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	})
}

// postOnce hace un POST JSON sin reintentos: /rec no es idempotente.
func (c *Client) postOnce(ctx context.Context, url string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, responseError(resp)
	}
	return io.ReadAll(resp.Body)
}

// doWithRetry ejecuta la función con backoff exponencial.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error)) ([]byte, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return nil, fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by backend", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			if attempt == maxRetries {
				err := responseError(resp)
				resp.Body.Close()
				return nil, err
			}
			resp.Body.Close()
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			err := responseError(resp)
			resp.Body.Close()
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return body, nil
	}
	return nil, fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// responseError arma el mensaje de error con la cadena de fallback:
// mensaje JSON → texto crudo → status text.
func responseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)
	text := strings.TrimSpace(string(body))

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") && text != "" {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			switch m := v.(type) {
			case string:
				text = m
			case map[string]any:
				for _, key := range []string{"message", "detail", "error"} {
					if s, ok := m[key].(string); ok && s != "" {
						text = s
						break
					}
				}
			}
		}
	}
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &APIError{
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("Error (%d): %s", resp.StatusCode, text),
	}
}
