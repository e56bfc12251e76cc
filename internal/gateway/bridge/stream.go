package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/equitybot/internal/crypto"
	"github.com/alanyoungcy/equitybot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Stream is the bridge's real-time tick feed. Subscriptions survive
// reconnects.
type Stream struct {
	wsURL string
	auth  *crypto.HMACAuth
	sink  domain.TickHandler

	mu    sync.Mutex
	conn  *websocket.Conn
	codes map[string]struct{}

	logger *slog.Logger
}

// NewStream creates a stream client for wsURL, e.g.
// "ws://127.0.0.1:8700/v1/stream". Every received tick is passed to sink.
func NewStream(wsURL string, auth *crypto.HMACAuth, sink domain.TickHandler, logger *slog.Logger) *Stream {
	return &Stream{
		wsURL:  wsURL,
		auth:   auth,
		sink:   sink,
		codes:  make(map[string]struct{}),
		logger: logger.With(slog.String("component", "bridge_stream")),
	}
}

// Run connects and reads ticks until ctx is done, reconnecting with
// exponential backoff.
func (s *Stream) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("tick stream disconnected",
			slog.String("error", fmt.Errorf("%w: %w", domain.ErrWSDisconnect, err).Error()),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// session runs one connection until it fails.
func (s *Stream) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	header := http.Header{}
	if s.auth != nil {
		for k, v := range s.auth.Headers(http.MethodGet, "/v1/stream", "") {
			header.Set(k, v)
		}
	}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.mu.Lock()
	s.conn = conn
	codes := make([]string, 0, len(s.codes))
	for c := range s.codes {
		codes = append(codes, c)
	}
	var restoreErr error
	if len(codes) > 0 {
		slices.Sort(codes)
		restoreErr = s.sendLocked(streamCommand{Type: "subscribe", Codes: codes})
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()
	if restoreErr != nil {
		return fmt.Errorf("restore subscriptions: %w", restoreErr)
	}
	s.logger.Info("tick stream connected", slog.Int("subscriptions", len(codes)))

	stop := make(chan struct{})
	defer close(stop)
	go s.pingLoop(conn, stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(raw)
	}
}

// Subscribe adds code to the stream. While disconnected the code is only
// recorded and sent on the next connect.
func (s *Stream) Subscribe(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = struct{}{}
	if s.conn == nil {
		return nil
	}
	return s.sendLocked(streamCommand{Type: "subscribe", Codes: []string{code}})
}

// Unsubscribe removes code from the stream.
func (s *Stream) Unsubscribe(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
	if s.conn == nil {
		return nil
	}
	return s.sendLocked(streamCommand{Type: "unsubscribe", Codes: []string{code}})
}

// Connected reports whether a stream connection is currently open.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// sendLocked writes a command. Caller must hold s.mu.
func (s *Stream) sendLocked(cmd streamCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Stream) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Stream) handleMessage(raw []byte) {
	var msg tickMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Debug("dropping unparseable stream message", slog.String("error", err.Error()))
		return
	}
	if msg.Type != "tick" || msg.Code == "" {
		return
	}
	s.sink(msg.toDomain())
}
