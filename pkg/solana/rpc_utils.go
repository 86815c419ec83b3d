package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Global HTTP client with connection pooling for better performance
var (
	rpcCheckClient *http.Client
	clientOnce     sync.Once
)

func getRPCClient() *http.Client {
	clientOnce.Do(func() {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DisableKeepAlives:   false,
		}
		rpcCheckClient = &http.Client{
			Transport: transport,
			Timeout:   2 * time.Second,
		}
	})
	return rpcCheckClient
}

// RPCRequest represents a JSON-RPC request
type RPCRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// RPCResponse represents a JSON-RPC response
type RPCResponse struct {
	Jsonrpc string           `json:"jsonrpc"`
	Result  interface{}      `json:"result"`
	Error   *json.RawMessage `json:"error"`
	ID      int              `json:"id"`
}

// RPCCheckResult represents the result of checking an RPC endpoint
type RPCCheckResult struct {
	URL     string        `json:"url"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

func checkRPCAsync(ctx context.Context, url string, timeout time.Duration, ch chan<- RPCCheckResult, wg *sync.WaitGroup) {
	defer wg.Done()

	start := time.Now()

	req := RPCRequest{
		Jsonrpc: "2.0",
		ID:      1,
		Method:  "getHealth",
		Params:  []interface{}{},
	}
	body, _ := json.Marshal(req)

	client := getRPCClient()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		ch <- RPCCheckResult{URL: url, OK: false, Latency: 0, Error: err.Error()}
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	requestClient := &http.Client{
		Transport: client.Transport,
		Timeout:   timeout,
	}

	resp, err := requestClient.Do(httpReq)
	if err != nil {
		ch <- RPCCheckResult{URL: url, OK: false, Latency: time.Since(start), Error: err.Error()}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		ch <- RPCCheckResult{URL: url, OK: false, Latency: time.Since(start), Error: fmt.Sprintf("status code: %d", resp.StatusCode)}
		return
	}

	var result RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		ch <- RPCCheckResult{URL: url, OK: false, Latency: time.Since(start), Error: err.Error()}
		return
	}
	if result.Error != nil {
		ch <- RPCCheckResult{URL: url, OK: false, Latency: time.Since(start), Error: fmt.Sprintf("rpc error: %s", string(*result.Error))}
		return
	}

	ch <- RPCCheckResult{URL: url, OK: true, Latency: time.Since(start), Error: ""}
}

// CheckRPCListAsync checks multiple RPC endpoints concurrently. A cancelled
// context aborts the in-flight probes, which then report as failed.
func CheckRPCListAsync(ctx context.Context, rpcList []string, timeout time.Duration) []RPCCheckResult {
	var wg sync.WaitGroup
	resultCh := make(chan RPCCheckResult, len(rpcList))

	for _, url := range rpcList {
		wg.Add(1)
		go checkRPCAsync(ctx, url, timeout, resultCh, &wg)
	}

	wg.Wait()
	close(resultCh)

	var results []RPCCheckResult
	for res := range resultCh {
		results = append(results, res)
	}
	return results
}

// PickHealthyRPC returns the healthy endpoint with the lowest latency, or
// the first configured endpoint when none respond in time.
func PickHealthyRPC(ctx context.Context, rpcList []string, timeout time.Duration) string {
	if len(rpcList) == 0 {
		return ""
	}
	results := CheckRPCListAsync(ctx, rpcList, timeout)

	best := ""
	var bestLatency time.Duration
	for _, res := range results {
		if !res.OK {
			continue
		}
		if best == "" || res.Latency < bestLatency {
			best = res.URL
			bestLatency = res.Latency
		}
	}
	if best == "" {
		return rpcList[0]
	}
	return best
}
