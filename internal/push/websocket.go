package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fisaks/mbconsole/internal/api"
	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/session"
)

const (
	redialMin = 500 * time.Millisecond
	redialMax = 10 * time.Second
)

// WebSocket follows the service's /ws endpoint and redials with capped
// backoff whenever the socket drops. A rejected handshake (401) locks the
// gate and ends Run for good.
type WebSocket struct {
	url    string
	gate   *session.Gate
	dialer *websocket.Dialer

	RedialMin time.Duration
	RedialMax time.Duration
}

func NewWebSocket(url string, gate *session.Gate) *WebSocket {
	return &WebSocket{
		url:       url,
		gate:      gate,
		dialer:    &websocket.Dialer{HandshakeTimeout: 5 * time.Second, Proxy: http.ProxyFromEnvironment},
		RedialMin: redialMin,
		RedialMax: redialMax,
	}
}

func (w *WebSocket) Run(ctx context.Context, sink Sink) error {
	backoff := time.Duration(0)
	for {
		established := false
		err := w.gate.Do(func() error {
			var err error
			established, err = w.follow(ctx, sink)
			return err
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, session.ErrLocked) || errors.Is(err, api.ErrUnauthorized) {
			logging.Warn("push channel stopped", "error", err)
			return err
		}

		if established {
			backoff = 0
		}
		backoff = bumpBackoff(backoff, w.RedialMin, w.RedialMax)
		logging.Info("push channel closed, redialing", "error", err, "in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// follow dials once and forwards frames until the socket fails.
func (w *WebSocket) follow(ctx context.Context, sink Sink) (bool, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, fmt.Errorf("push handshake: %w", api.ErrUnauthorized)
		}
		return false, err
	}
	defer conn.Close()
	logging.Debug("push channel open", "url", redact(w.url))

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		ev, err := Decode(data)
		if err != nil {
			logging.Debug("skipping push frame", "error", err)
			continue
		}
		sink.Post(ev)
	}
}

func bumpBackoff(cur, lo, hi time.Duration) time.Duration {
	if cur < lo {
		return lo
	}
	cur *= 2
	if cur > hi {
		return hi
	}
	return cur
}

// redact hides the token query parameter in logged URLs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "xxx")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
