// Package stream conecta a los websockets push del backend y entrega los
// frames crudos, reconectando con backoff.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/hodlbook/internal/ports"
)

const (
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 3 * time.Second
	defaultMaxAttempts = 10
)

var (
	bookSuffix = regexp.MustCompile(`/(?:book|new)/?$`)
	tapSuffix  = regexp.MustCompile(`/tap/?$`)
)

// ErrGaveUp se devuelve cuando se agotan los reintentos.
var ErrGaveUp = errors.New("stream: reconnect attempts exhausted")

// BookURL arma la URL del stream de órdenes: <base>/new[?ss58=addr].
func BookURL(base, ss58 string) string {
	root := bookSuffix.ReplaceAllString(base, "")
	return withAddress(root+"/new", ss58)
}

// TapURL arma la URL del stream de ticks: <base>/tap[?ss58=addr].
func TapURL(base, ss58 string) string {
	root := tapSuffix.ReplaceAllString(bookSuffix.ReplaceAllString(base, ""), "")
	return withAddress(root+"/tap", ss58)
}

func withAddress(u, ss58 string) string {
	ss58 = strings.TrimSpace(ss58)
	if ss58 == "" {
		return u
	}
	return u + "?" + url.Values{"ss58": {ss58}}.Encode()
}

// Options ajusta la política de reconexión y los callbacks.
type Options struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	// OnSession recibe el uuid de sesión que el servidor manda como primer frame.
	OnSession func(session string)
	// OnConnect se llama en cada conexión abierta; reconnect es false la primera vez.
	OnConnect func(reconnect bool)
}

// Client es una conexión websocket con reconexión automática.
type Client struct {
	name   string
	url    string
	dialer *websocket.Dialer
	opts   Options
}

// New crea un Client para url. name solo se usa en logs.
func New(name, url string, opts Options) *Client {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &Client{
		name:   name,
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		opts:   opts,
	}
}

// URL devuelve la URL a la que conecta el cliente.
func (c *Client) URL() string { return c.url }

// Run implementa ports.Stream. Vuelve cuando ctx se cancela (nil) o cuando
// se agotan los reintentos (ErrGaveUp).
func (c *Client) Run(ctx context.Context, handle func(raw []byte)) error {
	attempts := 0
	connectedOnce := false

	for {
		err := c.session(ctx, connectedOnce, handle, func() {
			attempts = 0
			connectedOnce = true
		})
		if ctx.Err() != nil {
			return nil
		}

		if attempts >= c.opts.MaxAttempts {
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrGaveUp, c.name, attempts, err)
		}
		attempts++
		delay := Backoff(attempts, c.opts.BaseDelay, c.opts.MaxDelay)
		slog.Warn("stream disconnected", "stream", c.name, "err", err, "attempt", attempts, "retry_in", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

// Backoff devuelve min(base·1.5^attempt, max).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	d := time.Duration(float64(base) * math.Pow(1.5, float64(attempt)))
	if d > max || d <= 0 {
		return max
	}
	return d
}

// session abre una conexión y lee hasta que se cierra.
func (c *Client) session(ctx context.Context, reconnect bool, handle func([]byte), onOpen func()) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	onOpen()
	slog.Info("stream connected", "stream", c.name, "reconnect", reconnect)
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(reconnect)
	}

	// ReadMessage no acepta contexto: cerrar la conexión lo desbloquea.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	first := true
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		text := strings.TrimSpace(string(msg))

		if first {
			first = false
			if text != "" && c.opts.OnSession != nil {
				c.opts.OnSession(text)
			}
			continue
		}
		if text == "" {
			continue
		}
		handle([]byte(text))
	}
}

// Factory implementa ports.StreamFactory sobre una URL base.
type Factory struct {
	Base    string
	Options Options
}

// Book implementa ports.StreamFactory.
func (f Factory) Book(address string, onConnect func(reconnect bool)) ports.Stream {
	return New(streamName("book", address), BookURL(f.Base, address), f.with(onConnect))
}

// Tap implementa ports.StreamFactory.
func (f Factory) Tap(address string, onConnect func(reconnect bool)) ports.Stream {
	return New(streamName("tap", address), TapURL(f.Base, address), f.with(onConnect))
}

func (f Factory) with(onConnect func(bool)) Options {
	opts := f.Options
	opts.OnConnect = onConnect
	return opts
}

func streamName(kind, address string) string {
	if address == "" {
		return kind
	}
	return kind + ":" + address
}
