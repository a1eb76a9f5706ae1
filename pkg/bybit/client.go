package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	MainnetBaseURL = "https://api.bybit.com"
	TestnetBaseURL = "https://api-testnet.bybit.com"
	DemoBaseURL    = "https://api-demo.bybit.com"

	defaultRecvWindow = 5000 * time.Millisecond

	// Minimum spacing between requests, shared across all endpoints.
	requestInterval = 100 * time.Millisecond
)

// Config carries the credentials and environment selection for a Client.
type Config struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	RecvWindow time.Duration
}

// Client is a signed REST client for the Bybit V5 linear-perpetual API.
// All methods go through a shared rate limiter so callers never have to
// think about request spacing.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter

	specMu sync.RWMutex
	specs  map[string]InstrumentSpec
}

// NewClient builds a client for the given config. BaseURL defaults to
// mainnet and RecvWindow to 5000ms when unset.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MainnetBaseURL
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = defaultRecvWindow
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(requestInterval), 1),
		specs:   make(map[string]InstrumentSpec),
	}
}

// sign computes the V5 request signature: hex HMAC-SHA256 over
// timestamp + apiKey + recvWindow + paramStr.
func (c *Client) sign(timestamp, recvWindow, paramStr string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(timestamp + c.cfg.APIKey + recvWindow + paramStr))
	return hex.EncodeToString(mac.Sum(nil))
}

type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// doGet performs a signed GET. Params are sorted and URL-encoded before
// signing, matching what the exchange verifies against.
func (c *Client) doGet(ctx context.Context, path string, params url.Values, out any) error {
	// url.Values.Encode sorts by key, which is exactly the canonical
	// form the signature covers.
	query := params.Encode()
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// doPost performs a signed POST with a compact key-sorted JSON body.
func (c *Client) doPost(ctx context.Context, path string, body map[string]any, out any) error {
	// encoding/json writes map keys in sorted order with no extra
	// whitespace, so the signed string matches the bytes on the wire.
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("bybit: encode body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, string(raw), raw, out)
}

func (c *Client) do(ctx context.Context, method, path, paramStr string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	recvWindow := strconv.FormatInt(c.cfg.RecvWindow.Milliseconds(), 10)

	u := c.cfg.BaseURL + path
	if method == http.MethodGet && paramStr != "" {
		u += "?" + paramStr
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("bybit: build request: %w", err)
	}

	req.Header.Set("X-BAPI-API-KEY", c.cfg.APIKey)
	req.Header.Set("X-BAPI-SIGN", c.sign(timestamp, recvWindow, paramStr))
	req.Header.Set("X-BAPI-SIGN-TYPE", "2")
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("bybit: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bybit: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bybit: %s %s: HTTP %d: %s", method, path, resp.StatusCode, data)
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("bybit: decode response: %w", err)
	}
	if envelope.RetCode != 0 {
		return &APIError{Code: envelope.RetCode, Msg: envelope.RetMsg}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("bybit: decode result: %w", err)
		}
	}
	return nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
