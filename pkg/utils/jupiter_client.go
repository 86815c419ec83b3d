package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	usdcDecimals = 6
	// whole tokens quoted per price sample; large enough to dodge dust
	// rounding on low-priced mints
	sampleTokens = 1000
)

// JupiterQuoteResponse represents the response structure from Jupiter API
type JupiterQuoteResponse struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             string      `json:"swapMode"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []RoutePlan `json:"routePlan"`
	ContextSlot          int         `json:"contextSlot"`
	TimeTaken            float64     `json:"timeTaken"`
	SwapUsdValue         string      `json:"swapUsdValue"`
}

// RoutePlan represents a route plan in the Jupiter response
type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
	Bps      int      `json:"bps"`
}

// SwapInfo represents swap information in a route plan
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

type priceCacheEntry struct {
	price     float64
	updatedAt time.Time
}

// JupiterPriceClient quotes mints against USDC on the Jupiter lite API and
// serves the last known price when the API is unreachable. Implements the
// price oracle used by the ranking and payout paths.
type JupiterPriceClient struct {
	baseURL    string
	httpClient *http.Client

	// token decimals per mint; mints not listed default to 9
	decimals map[string]int

	mu    sync.RWMutex
	cache map[string]priceCacheEntry
}

func NewJupiterPriceClient(decimals map[string]int) *JupiterPriceClient {
	return &JupiterPriceClient{
		baseURL:    "https://lite-api.jup.ag/swap/v1/quote",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		decimals:   decimals,
		cache:      make(map[string]priceCacheEntry),
	}
}

// AssetPrice returns the USD price of one whole token of the mint.
// Stablecoins short-circuit to 1.0; any other mint is quoted against USDC
// with a cached-price fallback when the quote fails.
func (c *JupiterPriceClient) AssetPrice(ctx context.Context, mint string) (float64, error) {
	if mint == usdcMint {
		return 1.0, nil
	}

	dec := 9
	if d, ok := c.decimals[mint]; ok {
		dec = d
	}
	amountIn := sampleTokens * math.Pow(10, float64(dec))

	quote, err := c.GetSwapQuote(ctx, mint, usdcMint, strconv.FormatFloat(amountIn, 'f', 0, 64), 50)
	if err != nil {
		c.mu.RLock()
		entry, ok := c.cache[mint]
		c.mu.RUnlock()
		if ok {
			return entry.price, nil
		}
		return 0, fmt.Errorf("failed to get swap quote and no cached price: %w", err)
	}

	outAmount, err := strconv.ParseFloat(quote.OutAmount, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse outAmount: %w", err)
	}

	price := (outAmount / math.Pow(10, usdcDecimals)) / sampleTokens

	c.mu.Lock()
	c.cache[mint] = priceCacheEntry{price: price, updatedAt: time.Now()}
	c.mu.Unlock()

	return price, nil
}

// GetSwapQuote retrieves a swap quote from the Jupiter API
func (c *JupiterPriceClient) GetSwapQuote(ctx context.Context, inputMint, outputMint, amount string, slippageBps int) (*JupiterQuoteResponse, error) {
	amountFloat, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	if amountFloat <= 100 {
		// Jupiter rejects dust-sized quotes; return a zero quote instead
		return &JupiterQuoteResponse{
			InputMint:            inputMint,
			InAmount:             amount,
			OutputMint:           outputMint,
			OutAmount:            "0",
			OtherAmountThreshold: "0",
			SwapMode:             "ExactIn",
			SlippageBps:          slippageBps,
			PriceImpactPct:       "0",
			RoutePlan:            []RoutePlan{},
			SwapUsdValue:         "0",
		}, nil
	}

	params := url.Values{}
	params.Add("inputMint", inputMint)
	params.Add("outputMint", outputMint)
	params.Add("amount", amount)
	params.Add("slippageBps", strconv.Itoa(slippageBps))
	params.Add("restrictIntermediateTokens", "true")

	fullURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request failed with status: %d", resp.StatusCode)
	}

	var quoteResponse JupiterQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quoteResponse); err != nil {
		return nil, fmt.Errorf("failed to decode JSON response: %w", err)
	}

	return &quoteResponse, nil
}
