// Package hive talks to a Hive node over JSON-RPC.
package hive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// DefaultNodeURL is used when no node is configured.
const DefaultNodeURL = "https://api.hive.blog"

// MaxTradeHistoryLimit is the largest page get_trade_history accepts.
const MaxTradeHistoryLimit = 1000

// ErrAccountNotFound is returned when get_accounts yields nothing.
var ErrAccountNotFound = errors.New("account not found")

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client provides methods to interact with a Hive API node.
type Client struct {
	nodeURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	nextID     atomic.Uint64

	wsMu   sync.Mutex
	wsConn *websocket.Conn
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps outgoing calls at rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new client for nodeURL. ws:// and wss:// URLs use a
// persistent websocket, anything else plain HTTP POSTs.
func NewClient(nodeURL string, opts ...Option) *Client {
	if nodeURL == "" {
		nodeURL = DefaultNodeURL
	}
	c := &Client{
		nodeURL:    nodeURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NodeURL returns the node the client talks to.
func (c *Client) NodeURL() string {
	return c.nodeURL
}

func (c *Client) isWebsocket() bool {
	return strings.HasPrefix(c.nodeURL, "ws://") || strings.HasPrefix(c.nodeURL, "wss://")
}

// Close releases the websocket connection if one is open.
func (c *Client) Close() error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.wsConn == nil {
		return nil
	}
	err := c.wsConn.Close()
	c.wsConn = nil
	return err
}

// call performs one JSON-RPC round trip and decodes result into out.
func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", method, err)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	var (
		resp *rpcResponse
		err  error
	)
	if c.isWebsocket() {
		resp, err = c.doWebsocket(ctx, req)
	} else {
		resp, err = c.doHTTP(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result (body: %s): %w", method, string(resp.Result), err)
	}
	return nil
}

func (c *Client) doHTTP(ctx context.Context, req rpcRequest) (*rpcResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body (status: %d): %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response (body: %s): %w", string(respBody), err)
	}
	return &resp, nil
}

func (c *Client) doWebsocket(ctx context.Context, req rpcRequest) (*rpcResponse, error) {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.wsConn == nil {
		dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
		conn, _, err := dialer.DialContext(ctx, c.nodeURL, nil)
		if err != nil {
			return nil, fmt.Errorf("websocket dial %s: %w", c.nodeURL, err)
		}
		logger.Infof("Connected to Hive node %s", c.nodeURL)
		c.wsConn = conn
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.wsConn.SetWriteDeadline(deadline)
	_ = c.wsConn.SetReadDeadline(deadline)

	if err := c.wsConn.WriteJSON(req); err != nil {
		c.dropConn()
		return nil, fmt.Errorf("websocket write: %w", err)
	}
	for {
		var resp rpcResponse
		if err := c.wsConn.ReadJSON(&resp); err != nil {
			c.dropConn()
			return nil, fmt.Errorf("websocket read: %w", err)
		}
		if resp.ID == req.ID {
			return &resp, nil
		}
		logger.Debugf("Discarding websocket response for stale id %d", resp.ID)
	}
}

// dropConn closes a broken connection so the next call redials. Caller holds wsMu.
func (c *Client) dropConn() {
	if c.wsConn != nil {
		_ = c.wsConn.Close()
		c.wsConn = nil
	}
}

// GetTradeHistory returns fills between start and end, oldest first as the node returns them.
func (c *Client) GetTradeHistory(ctx context.Context, start, end time.Time, limit int) ([]MarketTrade, error) {
	if limit <= 0 || limit > MaxTradeHistoryLimit {
		return nil, fmt.Errorf("trade history limit must be in 1..%d, got %d", MaxTradeHistoryLimit, limit)
	}
	params := map[string]interface{}{
		"start": start.UTC().Format(timeLayout),
		"end":   end.UTC().Format(timeLayout),
		"limit": limit,
	}
	var result struct {
		Trades []MarketTrade `json:"trades"`
	}
	if err := c.call(ctx, "market_history_api.get_trade_history", params, &result); err != nil {
		return nil, err
	}
	return result.Trades, nil
}

// GetTicker returns the current internal market ticker.
func (c *Client) GetTicker(ctx context.Context) (*Ticker, error) {
	var raw rawTicker
	if err := c.call(ctx, "condenser_api.get_ticker", []interface{}{}, &raw); err != nil {
		return nil, err
	}
	return &Ticker{
		Latest:     float64(raw.Latest),
		LowestAsk:  float64(raw.LowestAsk),
		HighestBid: float64(raw.HighestBid),
	}, nil
}

// GetAccount returns the liquid balances of name.
func (c *Client) GetAccount(ctx context.Context, name string) (*Account, error) {
	var raws []rawAccount
	if err := c.call(ctx, "condenser_api.get_accounts", [][]string{{name}}, &raws); err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrAccountNotFound)
	}
	raw := raws[0]

	hive, symbol, err := ParseAssetString(raw.Balance)
	if err != nil {
		return nil, err
	}
	if symbol != SymbolHive && symbol != "STEEM" {
		return nil, fmt.Errorf("unexpected balance symbol %q", symbol)
	}
	hbd, symbol, err := ParseAssetString(raw.HBDBalance)
	if err != nil {
		return nil, err
	}
	if symbol != SymbolHBD && symbol != "SBD" {
		return nil, fmt.Errorf("unexpected hbd balance symbol %q", symbol)
	}
	return &Account{Name: raw.Name, Balance: hive, HBDBalance: hbd}, nil
}

// GetTransaction looks up a broadcast transaction by id.
func (c *Client) GetTransaction(ctx context.Context, trxID string) (*TransactionStatus, error) {
	var status TransactionStatus
	if err := c.call(ctx, "condenser_api.get_transaction", []string{trxID}, &status); err != nil {
		return nil, err
	}
	if status.TrxID == "" {
		status.TrxID = trxID
	}
	return &status, nil
}

// WaitForTransaction polls until trxID is in a block. A lookup error or the
// end of ctx stops the wait.
func (c *Client) WaitForTransaction(ctx context.Context, trxID string, interval time.Duration) (*TransactionStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := c.GetTransaction(ctx, trxID)
		if err != nil {
			return nil, fmt.Errorf("error checking transaction %s: %w", trxID, err)
		}
		if status.Confirmed() {
			logger.Infof("Transaction %s confirmed in block %d", trxID, status.BlockNum)
			return status, nil
		}
		logger.Infof("Waiting for transaction %s to be confirmed...", trxID)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
