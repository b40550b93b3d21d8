package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultURL     = "wss://open-api-swap.bingx.com/swap-market"
	resyncInterval = 5 * time.Second
	writeTimeout   = 5 * time.Second
)

// StateSink: куда отдаём состояние соединения (health).
type StateSink interface {
	SetStreamUp(v bool)
	MarkSeen(t time.Time)
}

// Stream держит один WebSocket и подписки на markPrice нужных символов.
// Набор символов берётся из symbols() и сверяется каждые resyncInterval.
type Stream struct {
	url     string
	dialer  *websocket.Dialer
	symbols func() []string
	state   StateSink
	log     *zap.Logger

	writeMu sync.Mutex
}

func NewStream(url string, symbols func() []string, state StateSink, log *zap.Logger) *Stream {
	if url == "" {
		url = DefaultURL
	}
	return &Stream{
		url:     url,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		symbols: symbols,
		state:   state,
		log:     log,
	}
}

// Run переподключается с экспоненциальной паузой, пока жив ctx. Канал out не закрывается.
func (s *Stream) Run(ctx context.Context, out chan<- MarkTick) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second

	for {
		started := time.Now()
		err := s.session(ctx, out)
		s.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		s.log.Warn("ws reconnect", zap.Error(err), zap.Duration("in", wait))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *Stream) session(ctx context.Context, out chan<- MarkTick) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()
	s.setConnected(true)
	s.log.Info("ws connected", zap.String("url", s.url))

	done := make(chan struct{})
	defer close(done)
	go func() {
		// разблокировать ReadMessage при отмене
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	subscribed := make(map[string]struct{})
	resync := func() error {
		want := make(map[string]struct{})
		for _, sym := range s.symbols() {
			want[sym] = struct{}{}
		}
		for _, sym := range diff(want, subscribed) {
			if err := s.write(conn, subscription{ID: uuid.NewString(), ReqType: "sub", DataType: sym + markPriceSuffix}); err != nil {
				return err
			}
			subscribed[sym] = struct{}{}
		}
		for _, sym := range diff(subscribed, want) {
			if err := s.write(conn, subscription{ID: uuid.NewString(), ReqType: "unsub", DataType: sym + markPriceSuffix}); err != nil {
				return err
			}
			delete(subscribed, sym)
		}
		return nil
	}
	if err := resync(); err != nil {
		return err
	}

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- msg:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-ticker.C:
			if err := resync(); err != nil {
				return err
			}
		case msg := <-frames:
			payload, err := decodeFrame(msg)
			if err != nil {
				s.log.Debug("ws frame", zap.Error(err))
				continue
			}
			if isPing(payload) {
				if err := s.writeText(conn, "Pong"); err != nil {
					return err
				}
				continue
			}
			tick, ok := parseMarkPrice(payload)
			if !ok {
				continue
			}
			if s.state != nil {
				s.state.MarkSeen(tick.Time)
			}
			select {
			case out <- tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Stream) write(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (s *Stream) writeText(conn *websocket.Conn, text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (s *Stream) setConnected(v bool) {
	if s.state != nil {
		s.state.SetStreamUp(v)
	}
}

// diff: ключи a, которых нет в b, отсортированные.
func diff(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
