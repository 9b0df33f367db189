package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sujalbistaa/feedsync/internal/errs"
	"github.com/sujalbistaa/feedsync/internal/models"
)

// EventHandler receives live events. data is the raw "data" member.
type EventHandler func(eventType string, data json.RawMessage)

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// StreamURL derives the websocket endpoint from the API base URL:
// http://host/api becomes ws://host/ws.
func StreamURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	p := strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/api")
	u.Path = p + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Stream reads live events until ctx is done or the connection drops.
// It returns nil when ctx ends the stream.
func (c *Client) Stream(ctx context.Context, h EventHandler) error {
	target, err := StreamURL(c.baseURL)
	if err != nil {
		return err
	}
	hdr := http.Header{}
	if a := c.session.AuthorizationHeader(); a != "" {
		hdr.Set("Authorization", a)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.http.Timeout
	conn, resp, err := dialer.DialContext(ctx, target, hdr)
	if err != nil {
		if resp != nil {
			return errs.FromStatus("stream", resp.StatusCode, err.Error())
		}
		return errs.Network("stream", err)
	}
	defer conn.Close()
	c.logger.Info("stream connected", zap.String("url", target))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.logger.Warn("skipping malformed event", zap.Error(err))
				continue
			}
			return errs.Network("stream", err)
		}
		if ev.Type == "" {
			continue
		}
		h(ev.Type, ev.Data)
	}
}

// PostRemover is told about posts deleted elsewhere.
type PostRemover interface {
	OnPostDeleted(postID string)
}

// DeletionsTo routes post_deleted events to f and ignores the rest.
func DeletionsTo(f PostRemover, logger *zap.Logger) EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(eventType string, data json.RawMessage) {
		if eventType != models.EventPostDeleted {
			return
		}
		var body struct {
			ID     string `json:"id"`
			PostID string `json:"post_id"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			logger.Warn("bad post_deleted payload", zap.Error(err))
			return
		}
		id := body.ID
		if id == "" {
			id = body.PostID
		}
		if id != "" {
			f.OnPostDeleted(id)
		}
	}
}
