// Package client is a Go client for the betchain HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/phenomenon0/betchain/pkg/api"
	"github.com/phenomenon0/betchain/pkg/chain"
)

const (
	// DefaultBaseURL is where betchaind listens by default.
	DefaultBaseURL = "http://localhost:8080"

	defaultRateLimit = 10.0 // requests per second
	defaultBurst     = 5
)

// APIError is a non-2xx response. It unwraps to the chain error class named
// by the server, so errors.Is(err, chain.ErrState) works across the wire.
type APIError struct {
	Status    int
	Kind      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return chain.KindByName(e.Kind)
}

// Client talks to a betchaind server on behalf of one account.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	account    common.Address
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAccount sets the account sent with every request.
func WithAccount(addr common.Address) ClientOption {
	return func(c *Client) {
		c.account = addr
	}
}

// NewClient creates a new API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Account returns the account the client acts as.
func (c *Client) Account() common.Address {
	return c.account
}

// TxResult is the common part of every mutating response.
type TxResult struct {
	TxHash string `json:"tx_hash"`
}

// Health returns the server health document.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var health map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &health); err != nil {
		return nil, err
	}
	return health, nil
}

type eventList struct {
	Events []api.EventView `json:"events"`
	Count  int             `json:"count"`
}

// ListEvents returns the events open for betting, most recent first.
func (c *Client) ListEvents(ctx context.Context) ([]api.EventView, error) {
	var list eventList
	if err := c.do(ctx, http.MethodGet, "/api/v1/events", nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Events, nil
}

// ListAllEvents returns every registered event.
func (c *Client) ListAllEvents(ctx context.Context) ([]api.EventView, error) {
	var list eventList
	if err := c.do(ctx, http.MethodGet, "/api/v1/events/all", nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Events, nil
}

// LatestEvent returns the most recent event, or the most recent pending one.
func (c *Client) LatestEvent(ctx context.Context, pending bool) (*api.EventView, error) {
	params := url.Values{}
	if pending {
		params.Set("pending", strconv.FormatBool(pending))
	}
	var event api.EventView
	if err := c.do(ctx, http.MethodGet, "/api/v1/events/latest", params, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// GetEvent fetches a single event by ID.
func (c *Client) GetEvent(ctx context.Context, id common.Hash) (*api.EventView, error) {
	var event api.EventView
	if err := c.do(ctx, http.MethodGet, "/api/v1/events/"+id.Hex(), nil, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// EventWagers lists the open bets on an event.
func (c *Client) EventWagers(ctx context.Context, id common.Hash) ([]api.WagerView, error) {
	var list struct {
		Wagers []api.WagerView `json:"wagers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/events/"+id.Hex()+"/wagers", nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Wagers, nil
}

// AddEvent registers an event and returns its ID.
func (c *Client) AddEvent(ctx context.Context, req api.AddEventRequest) (common.Hash, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", nil, req, &resp); err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(resp.ID), nil
}

// DeclareOutcome moves an event to outcome. winner is ignored unless outcome is "decided".
func (c *Client) DeclareOutcome(ctx context.Context, id common.Hash, outcome string, winner int) (*TxResult, error) {
	req := api.DeclareOutcomeRequest{Outcome: outcome}
	if outcome == "decided" {
		req.Winner = &winner
	}
	var result TxResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/events/"+id.Hex()+"/outcome", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SettleEvent settles every open bet on a final event and returns how many were settled.
func (c *Client) SettleEvent(ctx context.Context, id common.Hash) (int, error) {
	var resp struct {
		Settled int `json:"settled"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/events/"+id.Hex()+"/settle", nil, struct{}{}, &resp); err != nil {
		return 0, err
	}
	return resp.Settled, nil
}

// OracleStatus is the engine's registry binding.
type OracleStatus struct {
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
	Owner     string `json:"owner"`
}

// Oracle returns the engine's registry binding.
func (c *Client) Oracle(ctx context.Context) (*OracleStatus, error) {
	var status OracleStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/oracle", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetOracle rebinds the engine to the registry at addr.
func (c *Client) SetOracle(ctx context.Context, addr common.Address) (*OracleStatus, error) {
	var status OracleStatus
	req := api.SetOracleRequest{Address: addr.Hex()}
	if err := c.do(ctx, http.MethodPut, "/api/v1/oracle", nil, req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListBets returns the account's open bets.
func (c *Client) ListBets(ctx context.Context) ([]api.BetView, error) {
	var list struct {
		Bets []api.BetView `json:"bets"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/bets", nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Bets, nil
}

// GetBet returns the account's bet on an event.
func (c *Client) GetBet(ctx context.Context, id common.Hash) (*api.BetView, error) {
	var bet api.BetView
	if err := c.do(ctx, http.MethodGet, "/api/v1/bets/"+id.Hex(), nil, nil, &bet); err != nil {
		return nil, err
	}
	return &bet, nil
}

// PlaceBet stakes amount (in ether, e.g. "0.5") on chosenWinner.
func (c *Client) PlaceBet(ctx context.Context, id common.Hash, chosenWinner int, amount string) (*TxResult, error) {
	req := api.PlaceBetRequest{EventID: id.Hex(), ChosenWinner: chosenWinner, Amount: amount}
	var result TxResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/bets", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelBet withdraws the account's bet and returns the refund in ether.
func (c *Client) CancelBet(ctx context.Context, id common.Hash) (string, error) {
	var resp struct {
		Refund string `json:"refund"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/bets/"+id.Hex(), nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Refund, nil
}

// SettleBet settles the account's bet and returns the payout in ether.
func (c *Client) SettleBet(ctx context.Context, id common.Hash) (string, error) {
	var resp struct {
		Payout string `json:"payout"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/bets/"+id.Hex()+"/settle", nil, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Payout, nil
}

// GetAccount summarizes an address.
func (c *Client) GetAccount(ctx context.Context, addr common.Address) (*api.AccountView, error) {
	var account api.AccountView
	if err := c.do(ctx, http.MethodGet, "/api/v1/accounts/"+addr.Hex(), nil, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Token describes the DAI ledger.
func (c *Client) Token(ctx context.Context) (*api.TokenView, error) {
	var token api.TokenView
	if err := c.do(ctx, http.MethodGet, "/api/v1/dai", nil, nil, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// TransferDAI moves amount DAI from the account to to.
func (c *Client) TransferDAI(ctx context.Context, to common.Address, amount string) (*TxResult, error) {
	var result TxResult
	req := api.TokenTransferRequest{To: to.Hex(), Amount: amount}
	if err := c.do(ctx, http.MethodPost, "/api/v1/dai/transfer", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ApproveDAI lets spender move up to amount of the account's DAI.
func (c *Client) ApproveDAI(ctx context.Context, spender common.Address, amount string) (*TxResult, error) {
	var result TxResult
	req := api.TokenApproveRequest{Spender: spender.Hex(), Amount: amount}
	if err := c.do(ctx, http.MethodPost, "/api/v1/dai/approve", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Allowance returns how much DAI spender may move for owner.
func (c *Client) Allowance(ctx context.Context, owner, spender common.Address) (string, error) {
	params := url.Values{}
	params.Set("owner", owner.Hex())
	params.Set("spender", spender.Hex())
	var resp struct {
		Allowance string `json:"allowance"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/dai/allowance", params, nil, &resp); err != nil {
		return "", err
	}
	return resp.Allowance, nil
}

// DepositPool deposits amount DAI into the pool, credited to beneficiary.
// A zero beneficiary credits the account itself.
func (c *Client) DepositPool(ctx context.Context, amount string, beneficiary common.Address) (*TxResult, error) {
	req := api.PoolDepositRequest{Amount: amount}
	if beneficiary != (common.Address{}) {
		req.Beneficiary = beneficiary.Hex()
	}
	var result TxResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/pool/deposit", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WithdrawPool closes the account's pool position and returns what was paid, in DAI.
func (c *Client) WithdrawPool(ctx context.Context) (string, error) {
	var resp struct {
		Paid string `json:"paid"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/pool/withdraw", nil, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Paid, nil
}

// Position returns the pool deposit credited to addr.
func (c *Client) Position(ctx context.Context, addr common.Address) (*api.PositionView, error) {
	var pos api.PositionView
	if err := c.do(ctx, http.MethodGet, "/api/v1/pool/positions/"+addr.Hex(), nil, nil, &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

// Owner returns the administrator of "bet" or "oracle".
func (c *Client) Owner(ctx context.Context, contract string) (*api.OwnerView, error) {
	var view api.OwnerView
	if err := c.do(ctx, http.MethodGet, "/api/v1/owners/"+url.PathEscape(contract), nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// TransferOwnership hands "bet" or "oracle" to newOwner.
func (c *Client) TransferOwnership(ctx context.Context, contract string, newOwner common.Address) (*api.OwnerView, error) {
	var view api.OwnerView
	req := api.TransferOwnershipRequest{NewOwner: newOwner.Hex()}
	if err := c.do(ctx, http.MethodPut, "/api/v1/owners/"+url.PathEscape(contract), nil, req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// RenounceOwnership permanently disables the owner-gated operations of "bet" or "oracle".
func (c *Client) RenounceOwnership(ctx context.Context, contract string) (*api.OwnerView, error) {
	var view api.OwnerView
	if err := c.do(ctx, http.MethodDelete, "/api/v1/owners/"+url.PathEscape(contract), nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// do performs a request with rate limiting and decodes a 2xx body into result.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.account != (common.Address{}) {
		req.Header.Set(api.AccountHeader, c.account.Hex())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		return &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}
	return &APIError{
		Status:    resp.StatusCode,
		Kind:      body.Kind,
		Message:   body.Message,
		RequestID: body.RequestID,
	}
}
