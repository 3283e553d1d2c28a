// Package feedback asks an external text-generation service for a short
// post-match paragraph and falls back to a canned sentence when it cannot.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/types"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

const (
	defaultTimeout = 2 * time.Second
	maxBodyBytes   = 16 << 10
)

// Request is the payload posted to the service.
type Request struct {
	Result             model.Result `json:"result"`
	Score              int          `json:"score"`
	OpponentScore      int          `json:"opponent_score"`
	NearMiss           bool         `json:"near_miss"`
	DecidingRoundIndex *int         `json:"deciding_round_index,omitempty"`
	Rounds             []RoundNote  `json:"rounds"`
}

// RoundNote is one round of the requesting player.
type RoundNote struct {
	Index     int   `json:"index"`
	Correct   bool  `json:"correct"`
	TimedOut  bool  `json:"timed_out"`
	LatencyMs int64 `json:"latency_ms"`
}

type response struct {
	Text string `json:"text"`
}

// Client calls the feedback service.
type Client struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each call. It applies to a copy of the HTTP client, in
// whatever order the options are given.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. The client is copied,
// never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client. An empty url always yields the fallback text.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger.Get().Named("feedback"),
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.client
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.client = &hc
	return c
}

// Feedback returns generated text for the outcome, or the fallback sentence
// when the service is unconfigured, slow or failing.
func (c *Client) Feedback(ctx context.Context, out types.MatchOutcome, logs []model.RoundLog) string {
	if c.url == "" {
		return Fallback(out)
	}
	text, err := c.generate(ctx, newRequest(out, logs))
	if err != nil {
		metrics.RecordErrorByComponent("feedback", "unavailable")
		c.logger.Warn(ctx, "feedback service failed, using fallback",
			logger.String("match_id", out.MatchID),
			logger.Error(err),
		)
		return Fallback(out)
	}
	return text
}

func (c *Client) generate(ctx context.Context, body Request) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return "", fmt.Errorf("empty feedback text")
	}
	return text, nil
}

func newRequest(out types.MatchOutcome, logs []model.RoundLog) Request {
	req := Request{
		Result:             out.Result,
		Score:              out.Score,
		OpponentScore:      out.OpponentScore,
		NearMiss:           out.NearMiss,
		DecidingRoundIndex: out.DecidingRoundIndex,
		Rounds:             make([]RoundNote, 0, len(logs)),
	}
	for _, l := range logs {
		req.Rounds = append(req.Rounds, RoundNote{
			Index:     l.RoundIndex,
			Correct:   l.Correct,
			TimedOut:  l.TimedOut,
			LatencyMs: l.LatencyMs,
		})
	}
	return req
}

// Fallback is the static sentence for an outcome.
func Fallback(out types.MatchOutcome) string {
	switch {
	case out.Result == model.ResultWin:
		return "Strong match. You kept your answers sharp and closed it out."
	case out.Result == model.ResultDraw:
		return "Dead even. One faster correct answer would have broken the tie."
	case out.NearMiss && out.DecidingRoundIndex != nil:
		return fmt.Sprintf("So close. Round %d decided it, so review that one and queue again.", *out.DecidingRoundIndex+1)
	case out.NearMiss:
		return "So close. One more correct answer would have changed the result."
	default:
		return "Tough one. Review the rounds you missed and queue again."
	}
}
