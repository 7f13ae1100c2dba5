package loopring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stablepay/layer2/pkg/eddsa"
	"github.com/stablepay/layer2/pkg/layer2"
	"github.com/stablepay/layer2/pkg/log"
)

// codeAccountLocked is returned when an operation needs a registered key.
const codeAccountLocked = 104

var (
	errMalformedKey = errors.New("malformed public key")
	// ErrTxNotFound is returned by TxStatus when the backend has no record yet.
	ErrTxNotFound = errors.New("transaction not found")
)

// Client talks to the Loopring REST API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  log.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func WithClientLogger(lg log.Logger) ClientOption {
	return func(c *Client) { c.logger = lg }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Account looks up the account owned by owner.
func (c *Client) Account(ctx context.Context, owner string) (*AccountInfo, error) {
	var info AccountInfo
	q := url.Values{"owner": {owner}}
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", q, nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// APIKey fetches the account's API key, proving ownership of key.
func (c *Client) APIKey(ctx context.Context, accountID uint64, key *eddsa.KeyPair, scheme eddsa.Scheme) (string, error) {
	const path = "/api/v3/apiKey"
	q := url.Values{"accountId": {strconv.FormatUint(accountID, 10)}}

	sig, err := SignRequest(key, scheme, http.MethodGet, c.baseURL+path, q)
	if err != nil {
		return "", err
	}

	var res struct {
		APIKey string `json:"apiKey"`
	}
	if err := c.do(ctx, http.MethodGet, path, q, map[string]string{"X-API-SIG": sig}, nil, &res); err != nil {
		return "", err
	}
	return res.APIKey, nil
}

// UpdateAccount registers req.PublicKey. ecdsaSig is the EIP-712 signature
// of the request.
func (c *Client) UpdateAccount(ctx context.Context, req UpdateAccountRequest, ecdsaSig string) (*TxResponse, error) {
	req.ECDSASignature = ecdsaSig
	var res TxResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/account", nil, map[string]string{"X-API-SIG": ecdsaSig}, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Tokens lists the tokens the exchange supports.
func (c *Client) Tokens(ctx context.Context) ([]Token, error) {
	var tokens []Token
	if err := c.do(ctx, http.MethodGet, "/api/v3/exchange/tokens", nil, nil, nil, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// StorageID returns the next storage slot for an off-chain request.
func (c *Client) StorageID(ctx context.Context, apiKey string, accountID uint64, tokenID uint32) (*StorageID, error) {
	q := url.Values{
		"accountId":   {strconv.FormatUint(accountID, 10)},
		"sellTokenId": {strconv.FormatUint(uint64(tokenID), 10)},
	}
	var res StorageID
	if err := c.do(ctx, http.MethodGet, "/api/v3/storageId", q, apiKeyHeader(apiKey), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SubmitTransfer(ctx context.Context, apiKey string, req TransferRequest) (*TxResponse, error) {
	var res TxResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/transfer", nil, apiKeyHeader(apiKey), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SubmitWithdrawal(ctx context.Context, apiKey string, req WithdrawalRequest) (*TxResponse, error) {
	var res TxResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/user/withdrawals", nil, apiKeyHeader(apiKey), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TxStatus finds hash in the account's history of the given kind.
func (c *Client) TxStatus(ctx context.Context, apiKey string, kind TxKind, accountID uint64, hash string) (*TxStatus, error) {
	q := url.Values{
		"accountId": {strconv.FormatUint(accountID, 10)},
		"hashes":    {hash},
	}
	var res txHistory
	if err := c.do(ctx, http.MethodGet, "/api/v3/user/"+string(kind), q, apiKeyHeader(apiKey), nil, &res); err != nil {
		return nil, err
	}
	for _, tx := range res.Transactions {
		if strings.EqualFold(tx.Hash, hash) || strings.EqualFold(tx.TxHash, hash) {
			return &tx, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash)
}

// WSKey returns the short-lived key used to open the websocket API.
func (c *Client) WSKey(ctx context.Context) (string, error) {
	var res struct {
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodGet, "/v3/ws/key", nil, nil, nil, &res); err != nil {
		return "", err
	}
	return res.Key, nil
}

func apiKeyHeader(apiKey string) map[string]string {
	return map[string]string{"X-API-KEY": apiKey}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers map[string]string, body, out any) error {
	op := method + " " + path

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer c.bodyCloser(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	c.logger.Debug("loopring response", "op", op, "status", resp.StatusCode)

	if err := backendError(op, resp.StatusCode, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) bodyCloser(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warn("failed to close response body", "error", err)
	}
}

// backendError maps a failed response to a BackendRequestError carrying the
// backend message. Lock errors also match layer2.ErrAccountLocked.
func backendError(op string, status int, raw []byte) error {
	var envelope errorResponse
	// success bodies are often arrays, which do not decode into the envelope
	_ = json.Unmarshal(raw, &envelope)

	if status < 300 && envelope.ResultInfo.Code == 0 {
		return nil
	}

	reqErr := &layer2.BackendRequestError{
		Op:         op,
		StatusCode: status,
		Code:       envelope.ResultInfo.Code,
		Message:    envelope.ResultInfo.Message,
	}
	if reqErr.Message == "" && status >= 300 {
		reqErr.Message = strings.TrimSpace(string(raw))
	}
	if reqErr.Code == codeAccountLocked {
		return fmt.Errorf("%w: %w", layer2.ErrAccountLocked, reqErr)
	}
	return reqErr
}
