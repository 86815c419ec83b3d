// Package treasury is the client for the internal transfer service that
// owns the pool wallet keys. Signing and submission happen on that side;
// this process only requests transfers and records the returned signature.
package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client represents a treasury service client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type transferRequest struct {
	Destination  string  `json:"destination"`
	AmountNative float64 `json:"amount_native"`
}

type transferResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

// Transfer asks the treasury service to move native funds to the
// destination wallet and returns the transaction signature.
func (c *Client) Transfer(ctx context.Context, destination string, amountNative float64) (string, error) {
	payload := transferRequest{
		Destination:  destination,
		AmountNative: amountNative,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/transfers", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send transfer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transfer request failed with status code: %d", resp.StatusCode)
	}

	var result transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode transfer response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("transfer rejected: %s", result.Error)
	}
	if result.Signature == "" {
		return "", fmt.Errorf("transfer response missing signature")
	}

	return result.Signature, nil
}
