package service

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const markPush = `{"code":0,"dataType":"BTC-USDT@markPrice","data":{"e":"markPriceUpdate","E":1700000000000,"s":"BTC-USDT","p":"50123.4"}}`

func TestDecodeFrame(t *testing.T) {
	payload, err := decodeFrame(gz(t, "Ping"))
	require.NoError(t, err)
	assert.True(t, isPing(payload))

	plain, err := decodeFrame([]byte(markPush))
	require.NoError(t, err)
	assert.Equal(t, markPush, string(plain))

	_, err = decodeFrame([]byte{0x1f, 0x8b, 0x00})
	assert.Error(t, err)
}

func TestParseMarkPrice(t *testing.T) {
	tick, ok := parseMarkPrice([]byte(markPush))
	require.True(t, ok)
	assert.Equal(t, "BTC-USDT", tick.Symbol)
	assert.Equal(t, "50123.4", tick.Price.String())
	assert.Equal(t, int64(1700000000000), tick.Time.UnixMilli())

	for _, raw := range []string{
		`{"id":"x","code":0,"msg":"","dataType":"BTC-USDT@markPrice"}`,
		`{"dataType":"BTC-USDT@depth","data":{"p":"1"}}`,
		`{"dataType":"BTC-USDT@markPrice","data":{"p":"0"}}`,
		`not json`,
	} {
		_, ok := parseMarkPrice([]byte(raw))
		assert.False(t, ok, raw)
	}
}

type fakeState struct {
	mu        sync.Mutex
	connected bool
	ticks     int
}

func (f *fakeState) SetStreamUp(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakeState) MarkSeen(time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
}

func TestStreamSubscribesAndForwardsTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subs := make(chan string, 4)
	pong := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subs <- string(msg)

		_ = conn.WriteMessage(websocket.BinaryMessage, gz(t, "Ping"))
		_, msg, err = conn.ReadMessage()
		if err != nil {
			return
		}
		pong <- string(msg)

		_ = conn.WriteMessage(websocket.BinaryMessage, gz(t, markPush))
		// держим соединение, пока клиент не закроет
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	state := &fakeState{}
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewStream(url, func() []string { return []string{"BTC-USDT"} }, state, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan MarkTick, 1)
	go s.Run(ctx, out)

	select {
	case sub := <-subs:
		assert.Contains(t, sub, `"reqType":"sub"`)
		assert.Contains(t, sub, `"dataType":"BTC-USDT@markPrice"`)
	case <-time.After(3 * time.Second):
		t.Fatal("no subscription")
	}

	select {
	case p := <-pong:
		assert.Equal(t, "Pong", p)
	case <-time.After(3 * time.Second):
		t.Fatal("no pong")
	}

	select {
	case tick := <-out:
		assert.Equal(t, "BTC-USDT", tick.Symbol)
		assert.Equal(t, "50123.4", tick.Price.String())
	case <-time.After(3 * time.Second):
		t.Fatal("no tick")
	}

	state.mu.Lock()
	assert.True(t, state.connected)
	assert.Equal(t, 1, state.ticks)
	state.mu.Unlock()
}

func TestDiff(t *testing.T) {
	a := map[string]struct{}{"A": {}, "B": {}, "C": {}}
	b := map[string]struct{}{"B": {}}
	assert.Equal(t, []string{"A", "C"}, diff(a, b))
	assert.Empty(t, diff(b, a))
}
