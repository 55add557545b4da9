// Package client provides a Go client for the integrity verifier API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is an integrity verifier API client
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the timeout of the default HTTP client. Verification
// runs fan out to RPC calls, so it should exceed the server's run timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithAPIKey sends key in the X-API-Key header
func WithAPIKey(key string) Option {
	return func(client *Client) {
		client.apiKey = key
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(client *Client) {
		client.userAgent = ua
	}
}

// New creates a new client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "integrity-verifier-client",
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Chain is a chain a suite can reference
type Chain struct {
	Name     string `json:"name"`
	ChainID  uint64 `json:"chainId"`
	RPCURL   string `json:"rpcUrl"`
	Explorer string `json:"explorerUrl,omitempty"`
}

// Contract is one deployment to verify
type Contract struct {
	Name            string            `json:"name"`
	Chain           string            `json:"chain"`
	Address         string            `json:"address"`
	ArtifactFile    string            `json:"artifactFile"`
	IsProxy         bool              `json:"isProxy,omitempty"`
	ConstructorArgs []any             `json:"constructorArgs,omitempty"`
	ImmutableValues map[string]any    `json:"immutableValues,omitempty"`
	Libraries       map[string]string `json:"libraries,omitempty"`
	// StateVerification is passed through as-is
	StateVerification json.RawMessage `json:"stateVerification,omitempty"`
}

// Suite is a named set of contracts to verify
type Suite struct {
	Name      string           `json:"name,omitempty"`
	Chains    map[string]Chain `json:"chains,omitempty"`
	Contracts []Contract       `json:"contracts"`
}

// VerifyOptions narrows a run
type VerifyOptions struct {
	Contract     string `json:"contract,omitempty"`
	Chain        string `json:"chain,omitempty"`
	SkipBytecode bool   `json:"skipBytecode,omitempty"`
	SkipABI      bool   `json:"skipAbi,omitempty"`
	SkipState    bool   `json:"skipState,omitempty"`
}

// VerifyRequest submits a suite together with the artifacts and schemas it
// references, keyed by artifactFile and schemaFile
type VerifyRequest struct {
	Suite     Suite                      `json:"suite"`
	Artifacts map[string]json.RawMessage `json:"artifacts"`
	Schemas   map[string]json.RawMessage `json:"schemas,omitempty"`
	Options   VerifyOptions              `json:"options,omitempty"`
}

// CheckResult is the status line of one check
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ContractResult is the verdict for one contract. Only the status lines of
// each check are decoded.
type ContractResult struct {
	Contract    Contract     `json:"contract"`
	Chain       Chain        `json:"chain"`
	AddressUsed string       `json:"addressUsed,omitempty"`
	Bytecode    *CheckResult `json:"bytecodeResult,omitempty"`
	ABI         *CheckResult `json:"abiResult,omitempty"`
	State       *CheckResult `json:"stateResult,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
	SkipReason  string       `json:"skipReason,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Summary is the outcome of a run
type Summary struct {
	Total    int              `json:"total"`
	Passed   int              `json:"passed"`
	Failed   int              `json:"failed"`
	Warnings int              `json:"warnings"`
	Skipped  int              `json:"skipped"`
	Results  []ContractResult `json:"results"`
}

// VerifyResponse is the response of a run. RunID is empty when the server
// does not store runs.
type VerifyResponse struct {
	RunID   string  `json:"runId,omitempty"`
	Summary Summary `json:"summary"`
}

// Run is a stored run. Summary is only set by GetRun.
type Run struct {
	ID         string    `json:"id"`
	ConfigName string    `json:"configName"`
	Outcome    string    `json:"outcome"`
	Total      int       `json:"total"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Warnings   int       `json:"warnings"`
	Skipped    int       `json:"skipped"`
	CreatedAt  time.Time `json:"createdAt"`
	Summary    *Summary  `json:"summary,omitempty"`
}

// ListRunsOptions filters and pages ListRuns
type ListRunsOptions struct {
	Config  string
	Outcome string
	Limit   int
	Cursor  string
}

// ListRunsResponse is the response for listing runs
type ListRunsResponse struct {
	Data       []Run      `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Verify runs a suite on the server
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.post(ctx, "/api/v1/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRuns lists stored runs, newest first
func (c *Client) ListRuns(ctx context.Context, opts ListRunsOptions) (*ListRunsResponse, error) {
	q := url.Values{}
	if opts.Config != "" {
		q.Set("config", opts.Config)
	}
	if opts.Outcome != "" {
		q.Set("outcome", opts.Outcome)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	path := "/api/v1/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListRunsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRun gets a stored run with its full summary
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var resp Run
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Erc7201Slot returns the ERC-7201 base slot of a namespace as 0x-prefixed hex
func (c *Client) Erc7201Slot(ctx context.Context, namespace string) (string, error) {
	var resp struct {
		Slot string `json:"slot"`
	}
	if err := c.post(ctx, "/api/v1/slots/erc7201", map[string]string{"namespace": namespace}, &resp); err != nil {
		return "", err
	}
	return resp.Slot, nil
}

// Chains lists the chains suites may use without declaring them
func (c *Client) Chains(ctx context.Context) ([]Chain, error) {
	var resp struct {
		Data []Chain `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/chains", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Ready reports whether the server and its run store are up
func (c *Client) Ready(ctx context.Context) error {
	return c.get(ctx, "/readyz", nil)
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
