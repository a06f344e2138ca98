// Package backend is the thin client for the session/auth API: session
// creation and resumption are opaque request/response calls made before any
// stream is opened.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Client talks to the walletchat API backend.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    http.DefaultClient,
	}
}

// PriorTurn is one historical exchange returned by session resumption.
type PriorTurn struct {
	Prompt    string    `json:"prompt"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateSession registers a new chat session for a wallet and returns its ID.
// Controls are passed through opaquely (spending limits, delegation flags);
// their semantics belong to the backend.
func (c *Client) CreateSession(ctx context.Context, walletAddress string, controls map[string]interface{}, chainID string) (string, error) {
	if !common.IsHexAddress(walletAddress) {
		return "", fmt.Errorf("invalid wallet address: %q", walletAddress)
	}

	reqBody := struct {
		WalletAddress string                 `json:"walletAddress"`
		Controls      map[string]interface{} `json:"controls,omitempty"`
		ChainID       string                 `json:"chainId"`
	}{
		WalletAddress: common.HexToAddress(walletAddress).Hex(),
		Controls:      controls,
		ChainID:       chainID,
	}

	var respBody struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.post(ctx, "/v1/sessions", reqBody, &respBody); err != nil {
		return "", err
	}
	if respBody.SessionID == "" {
		return "", fmt.Errorf("backend returned empty session id")
	}
	return respBody.SessionID, nil
}

// ResumeSession fetches the session and prior turns for a wallet, starting
// at the given turn-group start time.
func (c *Client) ResumeSession(ctx context.Context, walletAddress string, turnGroupStartTime time.Time) (string, []PriorTurn, error) {
	if !common.IsHexAddress(walletAddress) {
		return "", nil, fmt.Errorf("invalid wallet address: %q", walletAddress)
	}

	reqBody := struct {
		WalletAddress      string    `json:"walletAddress"`
		TurnGroupStartTime time.Time `json:"turnGroupStartTime"`
	}{
		WalletAddress:      common.HexToAddress(walletAddress).Hex(),
		TurnGroupStartTime: turnGroupStartTime,
	}

	var respBody struct {
		SessionID string      `json:"sessionId"`
		Turns     []PriorTurn `json:"turns"`
	}
	if err := c.post(ctx, "/v1/sessions/resume", reqBody, &respBody); err != nil {
		return "", nil, err
	}
	if respBody.SessionID == "" {
		return "", nil, fmt.Errorf("backend returned empty session id")
	}
	return respBody.SessionID, respBody.Turns, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(jsonBytes))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
