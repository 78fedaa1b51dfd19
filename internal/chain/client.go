// Package chain talks to the external ledger-append REST API that performs
// contract writes on behalf of the service. The blockchain itself stays
// behind this request/response boundary.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"simplychain/backend/pkg/config"
	"simplychain/backend/pkg/logging"
)

// ErrNotConfigured is returned when the ledger API env vars are missing.
var ErrNotConfigured = errors.New("ledger API not configured")

// APIError is a non-2xx response from the ledger API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger API error (status %d): %s", e.StatusCode, e.Message)
}

// Client calls the contract-write endpoints of the ledger API.
type Client struct {
	baseURL    string
	apiKey     string
	contract   string
	httpClient *http.Client
	logger     logging.Logger
}

// NewClientFromEnv builds a Client from LEDGER_API_URL, LEDGER_API_KEY and
// LEDGER_CONTRACT_ADDRESS. A partially configured client returns
// ErrNotConfigured on use rather than failing startup.
func NewClientFromEnv(logger logging.Logger) *Client {
	return &Client{
		baseURL:    config.GetEnv("LEDGER_API_URL", ""),
		apiKey:     config.GetEnv("LEDGER_API_KEY", ""),
		contract:   config.GetEnv("LEDGER_CONTRACT_ADDRESS", ""),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// NewClient builds a Client with explicit settings. Used by tests.
func NewClient(baseURL, apiKey, contract string, logger logging.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		contract:   contract,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Configured reports whether the client can reach the ledger API.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != "" && c.contract != ""
}

type contractWriteRequest struct {
	ContractAddress string   `json:"contractAddress"`
	Method          string   `json:"method"`
	Args            []string `json:"args"`
}

type contractWriteResponse struct {
	BatchID         string `json:"batchId"`
	TransactionHash string `json:"transactionHash"`
	Message         string `json:"message"`
}

// CreateBatch opens a new notarization batch for a wallet and returns its id
// and the transaction hash. When the API response omits the batch id, the
// client falls back to reading the wallet's batch list and taking the highest
// numeric id; that read races concurrent creates, so the fallback is logged.
func (c *Client) CreateBatch(ctx context.Context, wallet string) (string, string, error) {
	if !c.Configured() {
		return "", "", ErrNotConfigured
	}

	resp, err := c.contractWrite(ctx, "createBatch", []string{wallet})
	if err != nil {
		return "", "", err
	}

	batchID := resp.BatchID
	if batchID == "" {
		c.logger.WithField("wallet", wallet).Warn("Create-batch response missing batch id, falling back to batch list read")
		batchID, err = c.highestBatchID(ctx, wallet)
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve batch id: %w", err)
		}
	}

	c.logger.WithFields(logging.Fields{
		"wallet":   wallet,
		"batch_id": batchID,
		"tx_hash":  resp.TransactionHash,
	}).Info("Created notarization batch")
	return batchID, resp.TransactionHash, nil
}

// AppendHash appends a document hash to a batch and returns the transaction
// hash.
func (c *Client) AppendHash(ctx context.Context, batchID, hash string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	resp, err := c.contractWrite(ctx, "appendHash", []string{batchID, hash})
	if err != nil {
		return "", err
	}

	c.logger.WithFields(logging.Fields{
		"batch_id": batchID,
		"hash":     hash,
		"tx_hash":  resp.TransactionHash,
	}).Info("Appended hash to batch")
	return resp.TransactionHash, nil
}

// ListBatchIDs reads the batch ids recorded for a wallet.
func (c *Client) ListBatchIDs(ctx context.Context, wallet string) ([]string, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := c.doRequest(ctx, http.MethodGet,
		fmt.Sprintf("%s/contract/%s/batches?wallet=%s", c.baseURL, c.contract, wallet), nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		BatchIDs []string `json:"batchIds"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse batch list: %w", err)
	}
	return parsed.BatchIDs, nil
}

func (c *Client) highestBatchID(ctx context.Context, wallet string) (string, error) {
	ids, err := c.ListBatchIDs(ctx, wallet)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("no batches found for wallet %s", wallet)
	}

	best := ""
	bestNum := int64(-1)
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		if n > bestNum {
			bestNum = n
			best = id
		}
	}
	if best == "" {
		// Non-numeric ids: take the last entry the API returned.
		best = ids[len(ids)-1]
	}
	return best, nil
}

func (c *Client) contractWrite(ctx context.Context, method string, args []string) (*contractWriteResponse, error) {
	payload, err := json.Marshal(contractWriteRequest{
		ContractAddress: c.contract,
		Method:          method,
		Args:            args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal contract write: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/contract/write", payload)
	if err != nil {
		return nil, err
	}

	var parsed contractWriteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse contract write response: %w", err)
	}
	return &parsed, nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger API response: %w", err)
	}

	if resp.StatusCode >= 400 {
		message := ""
		var parsed struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil {
			message = parsed.Message
			if message == "" {
				message = parsed.Error
			}
		}
		if message == "" {
			message = string(body)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	return body, nil
}
