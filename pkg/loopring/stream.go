package loopring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stablepay/layer2/pkg/log"
)

var (
	ErrDialingWebsocket = errors.New("error dialing websocket server")
	ErrSubscribing      = errors.New("error subscribing to account topic")
)

// StreamConfig tunes the account event stream.
type StreamConfig struct {
	// HandshakeTimeout bounds the websocket handshake.
	HandshakeTimeout time.Duration
	// ReconnectDelay is the pause between a dropped connection and the next dial.
	ReconnectDelay time.Duration
	// EventChanSize is the buffer of the event channel. Events are dropped
	// when it is full.
	EventChanSize int
}

var DefaultStreamConfig = StreamConfig{
	HandshakeTimeout: 5 * time.Second,
	ReconnectDelay:   3 * time.Second,
	EventChanSize:    100,
}

type subscribeRequest struct {
	Op             string         `json:"op"`
	Sequence       int            `json:"sequence"`
	APIKey         string         `json:"apiKey,omitempty"`
	UnsubscribeAll bool           `json:"unsubscribeAll"`
	Topics         []topicRequest `json:"topics"`
}

type topicRequest struct {
	Topic string `json:"topic"`
}

type streamMessage struct {
	Op     string          `json:"op,omitempty"`
	Result *ResultInfo     `json:"result,omitempty"`
	Topic  *topicRequest   `json:"topic,omitempty"`
	TS     int64           `json:"ts,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// AccountStream follows the account topic of the websocket API and
// reconnects until its context ends.
type AccountStream struct {
	cfg      StreamConfig
	endpoint string
	wsKey    func(ctx context.Context) (string, error)
	apiKey   string

	writeMu sync.Mutex
}

// NewAccountStream streams from endpoint. wsKey fetches a fresh connection key
// before every dial.
func NewAccountStream(endpoint string, wsKey func(ctx context.Context) (string, error), apiKey string, cfg StreamConfig) *AccountStream {
	return &AccountStream{
		cfg:      cfg,
		endpoint: endpoint,
		wsKey:    wsKey,
		apiKey:   apiKey,
	}
}

// Subscribe runs the stream in the background. The channel is closed once ctx
// is done.
func (s *AccountStream) Subscribe(ctx context.Context) <-chan AccountEvent {
	events := make(chan AccountEvent, s.cfg.EventChanSize)
	go func() {
		defer close(events)
		s.Run(ctx, events)
	}()
	return events
}

// Run dials, subscribes and forwards events until ctx is done.
func (s *AccountStream) Run(ctx context.Context, events chan<- AccountEvent) {
	lg := log.FromContext(ctx).WithName("account-stream")

	for {
		err := s.runOnce(ctx, events, lg)
		if ctx.Err() != nil {
			lg.Info("account stream stopped")
			return
		}
		lg.Warn("account stream disconnected, reconnecting", "error", err, "delay", s.cfg.ReconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *AccountStream) runOnce(ctx context.Context, events chan<- AccountEvent, lg log.Logger) error {
	key, err := s.wsKey(ctx)
	if err != nil {
		return fmt.Errorf("fetch websocket key: %w", err)
	}

	target, err := url.Parse(s.endpoint)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDialingWebsocket, err)
	}
	q := target.Query()
	q.Set("wsApiKey", key)
	target.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDialingWebsocket, err)
	}

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-childCtx.Done()
		conn.Close()
	}()

	sub := subscribeRequest{
		Op:             "sub",
		APIKey:         s.apiKey,
		UnsubscribeAll: true,
		Topics:         []topicRequest{{Topic: "account"}},
	}
	if err := s.writeJSON(conn, sub); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribing, err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if string(raw) == "ping" {
			if err := s.write(conn, []byte("pong")); err != nil {
				return err
			}
			continue
		}

		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			lg.Warn("malformed message", "message", string(raw), "error", err)
			continue
		}
		if msg.Op == "sub" {
			if msg.Result != nil && msg.Result.Code != 0 {
				return fmt.Errorf("%w: %s", ErrSubscribing, msg.Result.Message)
			}
			lg.Debug("subscribed to account topic")
			continue
		}
		if msg.Topic == nil || msg.Topic.Topic != "account" || len(msg.Data) == 0 {
			continue
		}

		var ev AccountEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			lg.Warn("malformed account event", "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- ev:
		default:
			lg.Warn("event channel full, dropping event", "accountId", ev.AccountID)
		}
	}
}

func (s *AccountStream) writeJSON(conn *websocket.Conn, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(conn, raw)
}

func (s *AccountStream) write(conn *websocket.Conn, raw []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, raw)
}
