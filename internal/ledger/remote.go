package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

// Default polling bound for remote confirmations.
const (
	DefaultPollInterval = time.Second
	DefaultPollAttempts = 10
)

// RemoteConfig configures a Remote ledger.
type RemoteConfig struct {
	BaseURL      string
	APIToken     string
	PollInterval time.Duration
	PollAttempts int
	HTTPClient   *http.Client
}

// Remote submits transfers to a ledger service over HTTP and polls for
// their outcome.
//
// Every envelope carries an expiry that falls no later than the final
// status poll. The service must drop a submission that has not executed by
// then, so an ErrTimeout from Transfer means the funds did not move.
type Remote struct {
	baseURL  string
	token    string
	interval time.Duration
	attempts int
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewRemote constructs a Remote ledger, filling unset poll settings with
// the defaults.
func NewRemote(cfg RemoteConfig, logger *slog.Logger) *Remote {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.APIToken,
		interval: cfg.PollInterval,
		attempts: cfg.PollAttempts,
		client:   cfg.HTTPClient,
		logger:   logger,
		now:      time.Now,
	}
}

// Envelope is the transfer payload submitted to the remote ledger.
type Envelope struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Amount    int64     `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Submission is the remote ledger's acknowledgement of an envelope.
type Submission struct {
	Hash string `json:"hash"`
}

// Transaction status values reported by the remote ledger.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ReasonInsufficientFunds is the failure reason mapped to ErrInsufficientFunds.
const ReasonInsufficientFunds = "insufficient_funds"

// TransactionStatus is the polled state of a submitted envelope.
type TransactionStatus struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Transfer submits the envelope and waits for it to settle.
//
// Once the envelope is sent its fate no longer depends on the caller, so
// submission and polling run on a context detached from ctx and bounded
// only by the envelope expiry. A transfer that cannot be confirmed either
// way is reported as an *UnconfirmedError.
func (r *Remote) Transfer(ctx context.Context, from, to principal.ID, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Sender:    string(from),
		Receiver:  string(to),
		Amount:    amount,
		ExpiresAt: r.now().UTC().Add(r.window()),
	}

	pollCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), env.ExpiresAt.Add(r.grace()))
	defer cancel()

	sub, err := r.submit(pollCtx, env)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return err
		}
		return &UnconfirmedError{ExpiresAt: env.ExpiresAt, Err: err}
	}
	r.logger.Debug("transfer submitted", "envelope", env.ID, "hash", sub.Hash)
	return r.wait(pollCtx, sub.Hash, env.ExpiresAt)
}

// window is the time from submission to envelope expiry. It ends at the
// last scheduled poll, so the final poll always observes an expired
// envelope.
func (r *Remote) window() time.Duration {
	return time.Duration(max(r.attempts-1, 1)) * r.interval
}

// grace bounds the final poll after expiry.
func (r *Remote) grace() time.Duration {
	timeout := r.client.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return r.interval + timeout
}

func (r *Remote) submit(ctx context.Context, env Envelope) (*Submission, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var sub Submission
	status, err := r.do(req, &sub)
	if err != nil {
		return nil, fmt.Errorf("submit transfer: %w", err)
	}
	switch {
	case status >= 200 && status < 300:
	case status >= 400 && status < 500:
		return nil, fmt.Errorf("%w: submit returned %d", ErrRejected, status)
	default:
		return nil, fmt.Errorf("submit transfer: unexpected status %d", status)
	}
	if sub.Hash == "" {
		return nil, fmt.Errorf("submit transfer: empty transaction hash")
	}
	return &sub, nil
}

// wait polls the transaction status up to the configured number of
// attempts, sleeping the poll interval between attempts. A failed poll is
// retried on the next attempt. The last attempt is held back until the
// envelope has expired, and only a pending answer from that poll counts as
// ErrTimeout.
func (r *Remote) wait(ctx context.Context, hash string, expiresAt time.Time) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		final := attempt == r.attempts
		if final {
			if err := sleep(ctx, expiresAt.Sub(r.now())); err != nil {
				lastErr = err
				break
			}
		}

		st, err := r.status(ctx, hash)
		if err != nil {
			lastErr = err
			r.logger.Warn("poll transfer", "hash", hash, "attempt", attempt, "error", err)
		} else {
			lastErr = nil
			switch st.Status {
			case StatusSuccess:
				return nil
			case StatusFailed:
				if st.Reason == ReasonInsufficientFunds {
					return ErrInsufficientFunds
				}
				return fmt.Errorf("%w: %s", ErrRejected, st.Reason)
			}
		}

		if final {
			break
		}
		if err := sleep(ctx, r.interval); err != nil {
			lastErr = err
			break
		}
	}
	if lastErr != nil {
		return &UnconfirmedError{Reference: hash, ExpiresAt: expiresAt, Err: lastErr}
	}
	return fmt.Errorf("%w: %s still pending after expiry", ErrTimeout, hash)
}

// Resolve looks up a transfer by the hash reported in an UnconfirmedError.
func (r *Remote) Resolve(ctx context.Context, reference string) (Outcome, error) {
	st, err := r.status(ctx, reference)
	if err != nil {
		return OutcomePending, err
	}
	switch st.Status {
	case StatusSuccess:
		return OutcomeApplied, nil
	case StatusFailed:
		return OutcomeNotApplied, nil
	default:
		return OutcomePending, nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Remote) status(ctx context.Context, hash string) (*TransactionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/transactions/"+url.PathEscape(hash), nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	var st TransactionStatus
	code, err := r.do(req, &st)
	if err != nil {
		return nil, fmt.Errorf("poll transfer: %w", err)
	}
	switch code {
	case http.StatusOK:
		return &st, nil
	case http.StatusNotFound:
		// Not indexed yet.
		return &TransactionStatus{Hash: hash, Status: StatusPending}, nil
	default:
		return nil, fmt.Errorf("poll transfer: unexpected status %d", code)
	}
}

// do sends req and decodes a JSON body into dst on 2xx responses.
func (r *Remote) do(req *http.Request, dst any) (int, error) {
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(dst); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
