// Package settlement is the HTTP client for the external game aggregator.
package settlement

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/settlement"
	"github.com/gamehub/backend/internal/infrastructure/config"
	"github.com/gamehub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// maxResponseSize caps how much of an aggregator response is read
const maxResponseSize = 1 << 20

// DefaultTimeout bounds every aggregator call when none is configured
const DefaultTimeout = 5 * time.Second

// ErrBaseURLRequired is returned when the client has nowhere to send requests
var ErrBaseURLRequired = errors.New("settlement: base url is required")

// Client implements settlement.Gateway over form-encoded HTTP POSTs
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an aggregator client from configuration
func NewClient(cfg config.SettlementConfig, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Deposit credits account on the aggregator
func (c *Client) Deposit(ctx context.Context, req settlement.Request) (*settlement.Result, error) {
	return c.move(ctx, settlement.OperationDeposit, req)
}

// Withdraw debits account on the aggregator
func (c *Client) Withdraw(ctx context.Context, req settlement.Request) (*settlement.Result, error) {
	return c.move(ctx, settlement.OperationWithdraw, req)
}

// move refuses amounts the wire format would round, so the aggregator
// never moves a different amount than the one booked locally
func (c *Client) move(ctx context.Context, op settlement.Operation, req settlement.Request) (*settlement.Result, error) {
	if !settlement.Representable(req.Amount) {
		return nil, &settlement.Error{
			Operation: op,
			Account:   req.Account,
			Message:   fmt.Sprintf("amount %s has more than %d decimal places", req.Amount.String(), settlement.AmountPlaces),
		}
	}
	return c.call(ctx, op, req.Account, req.Credentials,
		[]param{{"username", req.Account}, {"amount", req.Amount.StringFixed(settlement.AmountPlaces)}})
}

// CreateAccount registers account with the aggregator
func (c *Client) CreateAccount(ctx context.Context, account string, creds partner.Credentials) (*settlement.Result, error) {
	return c.call(ctx, settlement.OperationCreateAccount, account, creds,
		[]param{{"username", account}})
}

type param struct {
	key   string
	value string
}

// Sign returns the hex MD5 of opcode, each parameter value in order, then the secret key
func Sign(opcode string, values []string, secretKey string) string {
	var b strings.Builder
	b.WriteString(opcode)
	for _, v := range values {
		b.WriteString(v)
	}
	b.WriteString(secretKey)
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func (c *Client) call(ctx context.Context, op settlement.Operation, account string, creds partner.Credentials, params []param) (*settlement.Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "aggregator", string(op))
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOperation, string(op),
		telemetry.SpanAttrAccount, account,
	)

	form := url.Values{}
	form.Set("opcode", creds.Opcode)
	values := make([]string, 0, len(params))
	for _, p := range params {
		form.Set(p.key, p.value)
		values = append(values, p.value)
	}
	form.Set("signature", Sign(creds.Opcode, values, creds.SecretKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+string(op), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &settlement.Error{Operation: op, Account: account, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if creds.APIToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+creds.APIToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		serr := &settlement.Error{
			Operation: op,
			Account:   account,
			Message:   err.Error(),
			Timeout:   isTimeout(err),
			Err:       err,
		}
		c.logger.Warn("Aggregator request failed",
			zap.String("operation", string(op)),
			zap.String("account", account),
			zap.String("opcode", creds.Opcode),
			zap.Bool("timeout", serr.Timeout),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		telemetry.RecordError(span, serr)
		return nil, serr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		serr := &settlement.Error{Operation: op, Account: account, Message: "read response: " + err.Error(), Timeout: isTimeout(err), Err: err}
		telemetry.RecordError(span, serr)
		return nil, serr
	}
	raw := string(body)

	c.logger.Debug("Aggregator response",
		zap.String("operation", string(op)),
		zap.String("account", account),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("body", raw))

	outcome := ParseResponse(body)
	if resp.StatusCode >= http.StatusBadRequest {
		msg := outcome.Message
		if outcome.Succeeded() || msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		serr := &settlement.Error{Operation: op, Account: account, Message: msg, Raw: raw}
		telemetry.RecordError(span, serr)
		return nil, serr
	}
	if !outcome.Succeeded() {
		serr := &settlement.Error{Operation: op, Account: account, Message: outcome.Message, Raw: raw}
		telemetry.RecordError(span, serr)
		return nil, serr
	}

	return &settlement.Result{
		NewBalance: outcome.Balance,
		Message:    outcome.Message,
		Raw:        raw,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var _ settlement.Gateway = (*Client)(nil)
