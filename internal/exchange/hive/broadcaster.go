package hive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// ErrNoTransactionID is returned when a broadcast response carries no id.
var ErrNoTransactionID = errors.New("transaction id not found")

// BroadcastResult is what a successful broadcast yields.
type BroadcastResult struct {
	TrxID    string `json:"trx_id"`
	BlockNum uint32 `json:"block_num,omitempty"`
}

// Broadcaster signs and submits an operation.
type Broadcaster interface {
	Broadcast(ctx context.Context, op *LimitOrderCreate) (*BroadcastResult, error)
}

// RelayBroadcaster hands unsigned operations to an external signing service,
// which signs them for the account and pushes them to the chain.
type RelayBroadcaster struct {
	signerURL  string
	account    string
	key        string
	httpClient *http.Client
}

// NewRelayBroadcaster creates a relay. key may be empty when the signer holds it.
func NewRelayBroadcaster(signerURL, account, key string) *RelayBroadcaster {
	return &RelayBroadcaster{
		signerURL:  signerURL,
		account:    account,
		key:        key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type relayRequest struct {
	Account    string             `json:"account"`
	Key        string             `json:"wif,omitempty"`
	Operations []LimitOrderCreate `json:"operations"`
}

type relayResponse struct {
	BroadcastResult
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Broadcast posts op to the signer.
func (r *RelayBroadcaster) Broadcast(ctx context.Context, op *LimitOrderCreate) (*BroadcastResult, error) {
	body, err := json.Marshal(relayRequest{
		Account:    r.account,
		Key:        r.key,
		Operations: []LimitOrderCreate{*op},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal broadcast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.signerURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute broadcast request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read broadcast response body (status: %d): %w", resp.StatusCode, err)
	}

	var out relayResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode broadcast response (status: %d, body: %s): %w", resp.StatusCode, string(respBody), err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("signer error (status: %d): %s", resp.StatusCode, out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signer returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if out.TrxID == "" {
		out.TrxID = out.ID
	}
	if out.TrxID == "" {
		logger.Warnf("Broadcast response without transaction id: %s", string(respBody))
		return nil, ErrNoTransactionID
	}
	return &out.BroadcastResult, nil
}

// DryRunBroadcaster logs operations instead of sending them.
type DryRunBroadcaster struct{}

// Broadcast logs op and returns a made-up transaction id.
func (DryRunBroadcaster) Broadcast(ctx context.Context, op *LimitOrderCreate) (*BroadcastResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(op)
	logger.Infof("[DRY RUN] would broadcast %s", string(payload))
	return &BroadcastResult{TrxID: "dryrun-" + uuid.NewString()}, nil
}
