package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/equitybot/internal/crypto"
	"github.com/alanyoungcy/equitybot/internal/domain"
)

var testAuth = &crypto.HMACAuth{Key: "key-1", Secret: "s3cret", Account: "12345678"}

// verified rejects requests whose signature does not match testAuth.
func verified(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ok := crypto.Verify(testAuth.Secret,
			r.Header.Get(crypto.HeaderTimestamp),
			r.Method, r.URL.RequestURI(), string(body),
			r.Header.Get(crypto.HeaderSignature))
		if !ok || r.Header.Get(crypto.HeaderKey) != testAuth.Key {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(errorResponse{Code: "auth", Message: "bad signature"})
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newBridgeServer(t *testing.T) (*httptest.Server, *[]orderRequest) {
	t.Helper()
	var orders []orderRequest
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", verified(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, healthResponse{Connected: true})
	}))
	mux.HandleFunc("GET /v1/quotes/{code}", verified(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("code") == "999999" {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, errorResponse{Code: "not_found", Message: "unknown code"})
			return
		}
		writeJSON(w, quoteResponse{Code: r.PathValue("code"), Price: 10500, PrevClose: 10000, Volume: 900, TradeValue: 95})
	}))
	mux.HandleFunc("GET /v1/positions/{code}", verified(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, positionResponse{Code: r.PathValue("code"), Quantity: 33, AvgPrice: 9900})
	}))
	mux.HandleFunc("GET /v1/charts/{code}/daily", verified(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		writeJSON(w, chartResponse{Bars: []barMessage{
			{Date: "20260316", High: 10600, Low: 10100, Close: 10500},
			{Date: "20260313", High: 10200, Low: 9800, Close: 10000},
			{Date: "20260312", High: 10300, Low: 9700, Close: 9900},
		}})
	}))
	mux.HandleFunc("GET /v1/markets/{code}", verified(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, marketResponse{Code: r.PathValue("code"), Market: "KOSDAQ"})
	}))
	mux.HandleFunc("POST /v1/orders", verified(func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		orders = append(orders, req)
		if req.Quantity > 100 {
			writeJSON(w, orderResponse{Accepted: false, Message: "over limit"})
			return
		}
		writeJSON(w, orderResponse{Accepted: true, OrderID: "0001"})
	}))
	mux.HandleFunc("GET /v1/busy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &orders
}

func TestClientQueries(t *testing.T) {
	srv, _ := newBridgeServer(t)
	c := NewClient(srv.URL, testAuth, time.Second)
	ctx := context.Background()

	ok, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	q, err := c.GetQuote(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, domain.Quote{Code: "005930", Price: 10500, Close: 10000, Volume: 900, TradeValue: 95}, q)

	p, err := c.GetPosition(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, int64(33), p.Quantity)
	assert.Equal(t, int64(9900), p.AvgPrice)

	bars, err := c.GetDailyBars(ctx, "005930", 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 2026, bars[0].Date.Year())
	assert.Equal(t, int64(10200), bars[1].High)

	kind, err := c.GetMarketKind(ctx, "091990")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketKOSDAQ, kind)
}

func TestClientErrors(t *testing.T) {
	srv, _ := newBridgeServer(t)
	ctx := context.Background()

	_, err := NewClient(srv.URL, testAuth, time.Second).GetQuote(ctx, "999999")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bad := &crypto.HMACAuth{Key: "key-1", Secret: "wrong"}
	_, err = NewClient(srv.URL, bad, time.Second).GetQuote(ctx, "005930")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = NewClient(srv.URL, testAuth, time.Second).do(ctx, http.MethodGet, "/v1/busy", nil, nil)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	_, err = NewClient("http://127.0.0.1:1", testAuth, time.Second).Health(ctx)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestClientPlaceOrder(t *testing.T) {
	srv, orders := newBridgeServer(t)
	c := NewClient(srv.URL, testAuth, time.Second)
	ctx := context.Background()

	res, err := c.PlaceOrder(ctx, domain.OrderRequest{
		ClientID: "c-1", Code: "005930", Side: domain.OrderSideBuy,
		Type: domain.OrderTypeIOCMarket, Quantity: 20,
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "0001", res.OrderID)

	res, err = c.PlaceOrder(ctx, domain.OrderRequest{Code: "005930", Side: domain.OrderSideSell, Quantity: 500})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "over limit", res.Message)

	require.Len(t, *orders, 2)
	assert.Equal(t, orderRequest{ClientID: "c-1", Code: "005930", Side: "buy", Type: "IOC_MARKET", Quantity: 20}, (*orders)[0])
}

func TestStreamSubscribesAndDeliversTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	commands := make(chan streamCommand, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(crypto.HeaderKey) != testAuth.Key {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var cmd streamCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			commands <- cmd
			if cmd.Type == "subscribe" {
				for _, code := range cmd.Codes {
					conn.WriteJSON(tickMessage{Type: "tick", Code: code, Price: 10100, TradeValue: 3, Time: 1773635400000})
				}
			}
		}
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got []domain.Tick
	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), testAuth, func(tk domain.Tick) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, tk)
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Recorded before connecting, sent on connect.
	require.NoError(t, s.Subscribe("005930"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case cmd := <-commands:
		assert.Equal(t, streamCommand{Type: "subscribe", Codes: []string{"005930"}}, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe command")
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, int64(10100), got[0].Price)
	assert.Equal(t, int64(3), got[0].TradeValue, "raw units; correction happens in the router")
	assert.False(t, got[0].Time.IsZero())
	mu.Unlock()

	require.NoError(t, s.Unsubscribe("005930"))
	select {
	case cmd := <-commands:
		assert.Equal(t, "unsubscribe", cmd.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no unsubscribe command")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}
