package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client represents a Helius API client
type Client struct {
	apiKey     string
	baseURL    string
	rpcURL     string
	httpClient *http.Client
}

// NewClient creates a new Helius API client
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: "https://api.helius.xyz/v0",
		rpcURL:  "https://mainnet.helius-rpc.com",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				IdleConnTimeout:       10 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

// TransactionOptions represents the query parameters for GetEnhancedTransactionsByAddress
type TransactionOptions struct {
	Limit  *int    `json:"limit,omitempty"`
	Before *string `json:"before,omitempty"`
	Until  *string `json:"until,omitempty"`
	Source *string `json:"source,omitempty"`
	Type   *string `json:"type,omitempty"`
}

// TokenTransfer represents a token transfer in the transaction
type TokenTransfer struct {
	FromTokenAccount string  `json:"fromTokenAccount"`
	ToTokenAccount   string  `json:"toTokenAccount"`
	FromUserAccount  string  `json:"fromUserAccount"`
	ToUserAccount    string  `json:"toUserAccount"`
	TokenAmount      float64 `json:"tokenAmount"`
	Mint             string  `json:"mint"`
	TokenStandard    string  `json:"tokenStandard"`
}

// NativeTransfer represents a native SOL transfer in the transaction
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// EnhancedTransaction represents the response structure for a transaction
type EnhancedTransaction struct {
	Description      string           `json:"description"`
	Type             string           `json:"type"`
	Source           string           `json:"source"`
	Fee              int64            `json:"fee"`
	FeePayer         string           `json:"feePayer"`
	Signature        string           `json:"signature"`
	Slot             uint64           `json:"slot"`
	Timestamp        int64            `json:"timestamp"`
	TokenTransfers   []TokenTransfer  `json:"tokenTransfers"`
	NativeTransfers  []NativeTransfer `json:"nativeTransfers"`
	TransactionError interface{}      `json:"transactionError"`
}

// GetEnhancedTransactionsByAddress retrieves enhanced transactions for a specific address
func (c *Client) GetEnhancedTransactionsByAddress(ctx context.Context, address string, opts *TransactionOptions) ([]EnhancedTransaction, error) {
	baseURL := fmt.Sprintf("%s/addresses/%s/transactions", c.baseURL, address)
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	q.Add("api-key", c.apiKey)

	if opts != nil {
		if opts.Limit != nil {
			q.Add("limit", fmt.Sprintf("%d", *opts.Limit))
		}
		if opts.Before != nil {
			q.Add("before", *opts.Before)
		}
		if opts.Until != nil {
			q.Add("until", *opts.Until)
		}
		if opts.Source != nil {
			q.Add("source", *opts.Source)
		}
		if opts.Type != nil {
			q.Add("type", *opts.Type)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status code: %d", resp.StatusCode)
	}

	var transactions []EnhancedTransaction
	if err := json.NewDecoder(resp.Body).Decode(&transactions); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return transactions, nil
}

// TokenAccount is one holder account returned by the getTokenAccounts RPC
type TokenAccount struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

type tokenAccountsResult struct {
	Total         int            `json:"total"`
	TokenAccounts []TokenAccount `json:"token_accounts"`
}

type tokenAccountsResponse struct {
	JsonRPC string              `json:"jsonrpc"`
	ID      string              `json:"id"`
	Result  tokenAccountsResult `json:"result"`
}

// GetTokenAccounts retrieves one page of token accounts for a mint.
// Pages are 1-based; an empty page marks the end.
func (c *Client) GetTokenAccounts(ctx context.Context, mint string, page, limit int) ([]TokenAccount, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      "1",
		"method":  "getTokenAccounts",
		"params": map[string]interface{}{
			"mint":  mint,
			"page":  page,
			"limit": limit,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	rpcURLWithKey := fmt.Sprintf("%s/?api-key=%s", c.rpcURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", rpcURLWithKey, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status code: %d", resp.StatusCode)
	}

	var accountsResp tokenAccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&accountsResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return accountsResp.Result.TokenAccounts, nil
}

// Helper function to create an int pointer
func IntPtr(i int) *int {
	return &i
}

// Helper function to create a string pointer
func StringPtr(s string) *string {
	return &s
}
