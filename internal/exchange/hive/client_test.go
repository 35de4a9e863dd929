package hive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockNode serves canned results keyed by method name.
func newMockNode(t *testing.T, results map[string]string) (*httptest.Server, *[]rpcRequest) {
	t.Helper()
	var seen []rpcRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			rpcRequest
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		req.rpcRequest.Params = req.Params
		seen = append(seen, req.rpcRequest)

		w.Header().Set("Content-Type", "application/json")
		result, ok := results[req.Method]
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + itoa(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + itoa(req.ID) + `,"result":` + result + `}`))
	}))
	t.Cleanup(server.Close)
	return server, &seen
}

func itoa(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestGetTradeHistory(t *testing.T) {
	server, seen := newMockNode(t, map[string]string{
		"market_history_api.get_trade_history": `{"trades":[
			{"date":"2024-12-01T10:00:00","current_pays":{"amount":"10000","precision":3,"nai":"@@000000021"},"open_pays":{"amount":"2500","precision":3,"nai":"@@000000013"}},
			{"date":"2024-12-01T10:01:30","current_pays":{"amount":"1200","precision":3,"nai":"@@000000013"},"open_pays":{"amount":"5000","precision":3,"nai":"@@000000021"}}
		]}`,
	})
	client := NewClient(server.URL, WithRateLimit(0, 0))

	start := time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	trades, err := client.GetTradeHistory(context.Background(), start, end, 200)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC), trades[0].Date.Time)
	assert.Equal(t, SymbolHive, trades[0].CurrentPays.Symbol())
	assert.Equal(t, "10", trades[0].CurrentPays.Amount.String())
	assert.Equal(t, 2.5, trades[0].OpenPays.Float64())
	assert.Equal(t, SymbolHBD, trades[1].CurrentPays.Symbol())

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "2.0", req.JSONRPC)
	var params map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Params.(json.RawMessage), &params))
	assert.Equal(t, "2024-12-01T09:00:00", params["start"])
	assert.Equal(t, "2024-12-01T10:00:00", params["end"])
	assert.Equal(t, float64(200), params["limit"])
}

func TestGetTradeHistory_RejectsBadLimit(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	_, err := client.GetTradeHistory(context.Background(), time.Now(), time.Now(), 0)
	assert.Error(t, err)
	_, err = client.GetTradeHistory(context.Background(), time.Now(), time.Now(), MaxTradeHistoryLimit+1)
	assert.Error(t, err)
}

func TestGetTicker_StringNumbers(t *testing.T) {
	server, _ := newMockNode(t, map[string]string{
		"condenser_api.get_ticker": `{"latest":"0.24500000","lowest_ask":"0.24600000","highest_bid":0.244,"percent_change":"1.2"}`,
	})
	client := NewClient(server.URL, WithRateLimit(0, 0))

	ticker, err := client.GetTicker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.245, ticker.Latest)
	assert.Equal(t, 0.246, ticker.LowestAsk)
	assert.Equal(t, 0.244, ticker.HighestBid)
}

func TestGetAccount(t *testing.T) {
	server, _ := newMockNode(t, map[string]string{
		"condenser_api.get_accounts": `[{"name":"alice","balance":"12.345 HIVE","hbd_balance":"6.500 HBD"}]`,
	})
	client := NewClient(server.URL, WithRateLimit(0, 0))

	acc, err := client.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Name)
	assert.Equal(t, "12.345", acc.Balance.String())
	assert.Equal(t, "6.5", acc.HBDBalance.String())
}

func TestGetAccount_NotFound(t *testing.T) {
	server, _ := newMockNode(t, map[string]string{
		"condenser_api.get_accounts": `[]`,
	})
	client := NewClient(server.URL, WithRateLimit(0, 0))

	_, err := client.GetAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCall_RPCError(t *testing.T) {
	server, _ := newMockNode(t, map[string]string{})
	client := NewClient(server.URL, WithRateLimit(0, 0))

	_, err := client.GetTicker(context.Background())
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestCall_HTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()
	client := NewClient(server.URL, WithRateLimit(0, 0))

	_, err := client.GetTicker(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestCall_RateLimiterHonoursContext(t *testing.T) {
	server, _ := newMockNode(t, map[string]string{"condenser_api.get_ticker": `{}`})
	client := NewClient(server.URL, WithRateLimit(0.001, 1))

	_, err := client.GetTicker(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.GetTicker(ctx)
	assert.Error(t, err, "second call must wait on the limiter and give up with the context")
}

func TestWaitForTransaction(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls++
		block := 0
		if calls >= 3 {
			block = 9001
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"transaction_id": "abc", "block_num": block},
		})
	}))
	defer server.Close()
	client := NewClient(server.URL, WithRateLimit(0, 0))

	status, err := client.WaitForTransaction(context.Background(), "abc", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint32(9001), status.BlockNum)
	assert.Equal(t, 3, calls)
}

func TestWaitForTransaction_StopsOnRPCError(t *testing.T) {
	server, _ := newMockNode(t, map[string]string{})
	client := NewClient(server.URL, WithRateLimit(0, 0))

	_, err := client.WaitForTransaction(context.Background(), "missing", time.Millisecond)
	var rpcErr *RPCError
	assert.True(t, errors.As(err, &rpcErr))
}

func TestWaitForTransaction_ContextTimeout(t *testing.T) {
	server, _ := newMockNode(t, map[string]string{
		"condenser_api.get_transaction": `{"transaction_id":"abc","block_num":0}`,
	})
	client := NewClient(server.URL, WithRateLimit(0, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := client.WaitForTransaction(ctx, "abc", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebsocketTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			// a stale frame first, the client must skip it
			_ = conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID + 100, "result": map[string]string{}})
			_ = conn.WriteJSON(map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  map[string]string{"latest": "0.25", "lowest_ask": "0.26", "highest_bid": "0.24"},
			})
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient(wsURL, WithRateLimit(0, 0), WithTimeout(2*time.Second))
	defer client.Close()

	for i := 0; i < 2; i++ {
		ticker, err := client.GetTicker(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0.26, ticker.LowestAsk)
	}
}
