// Package lm connects the detection engine to a causal language model served
// by a text-generation inference server, and owns the persisted snapshot
// that identifies that model.
package lm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/okian/textguard/internal/domain/detect"
	"github.com/okian/textguard/pkg/logger"
	"github.com/okian/textguard/pkg/metrics"
)

const (
	generatePath     = "/generate"
	maxErrorBodySize = 4 << 10
)

// generateRequest asks the server to echo per-token log-probabilities of the
// prompt itself; one new token is the smallest generation it accepts.
type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generateParameters struct {
	MaxNewTokens        int  `json:"max_new_tokens"`
	Details             bool `json:"details"`
	DecoderInputDetails bool `json:"decoder_input_details"`
}

type generateResponse struct {
	Details *struct {
		Prefill []prefillToken `json:"prefill"`
	} `json:"details"`
}

// prefillToken is one prompt token. Logprob is null for the first token,
// which has no preceding context.
type prefillToken struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Logprob *float64 `json:"logprob"`
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithTokenizer sets the local tokenizer used to reject empty input.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Client) {
		if t != nil {
			c.tokenizer = t
		}
	}
}

// WithLogger sets the logger for the client and its retry layer.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics manager. Defaults to the global one.
func WithMetrics(m *metrics.Manager) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Client implements detect.LanguageModel over HTTP.
type Client struct {
	snapshot  Snapshot
	endpoint  string
	http      *retryablehttp.Client
	tokenizer Tokenizer
	logger    logger.Logger
	metrics   *metrics.Manager
}

var _ detect.LanguageModel = (*Client)(nil)

// NewClient builds a client for the model described by snap. The snapshot is
// validated here so a bad artifact fails at startup.
func NewClient(snap Snapshot, opts ...Option) (*Client, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		snapshot:  snap,
		endpoint:  strings.TrimRight(snap.Endpoint, "/") + generatePath,
		tokenizer: FieldsTokenizer{},
		metrics:   metrics.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Named("lm")
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = snap.MaxRetries
	rc.HTTPClient.Timeout = snap.Timeout()
	rc.Logger = logger.NewLeveled(c.logger)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.http = rc

	return c, nil
}

// Name returns the model name from the snapshot.
func (c *Client) Name() string { return c.snapshot.ModelName }

// Snapshot returns the snapshot the client was built from.
func (c *Client) Snapshot() Snapshot { return c.snapshot }

// Loss scores text against itself and returns the mean negative
// log-probability of every token that has a preceding context.
func (c *Client) Loss(ctx context.Context, text string) (detect.Loss, error) {
	// BPE tokenizers count whitespace as tokens.
	if strings.TrimSpace(text) == "" || c.tokenizer.Count(text) == 0 {
		return detect.Loss{}, detect.ErrEmptyText
	}

	start := time.Now()
	loss, err := c.call(ctx, text)
	elapsed := float64(time.Since(start).Milliseconds())
	c.metrics.RecordInference(loss.Tokens, elapsed, err)
	if err != nil {
		c.logger.Warn(ctx, "inference call failed",
			logger.String("model", c.snapshot.ModelName),
			logger.Error(err),
		)
		return detect.Loss{}, err
	}
	c.logger.Debug(ctx, "inference call finished",
		logger.Int("tokens", loss.Tokens),
		logger.Float64("mean_loss", loss.Mean),
		logger.Float64("latency_ms", elapsed),
	)
	return loss, nil
}

func (c *Client) call(ctx context.Context, text string) (detect.Loss, error) {
	body, err := json.Marshal(generateRequest{
		Inputs: text,
		Parameters: generateParameters{
			MaxNewTokens:        1,
			Details:             true,
			DecoderInputDetails: true,
		},
	})
	if err != nil {
		return detect.Loss{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return detect.Loss{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return detect.Loss{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return detect.Loss{}, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return detect.Loss{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if out.Details == nil {
		return detect.Loss{}, fmt.Errorf("%w: missing details.prefill", ErrMalformed)
	}
	return meanLoss(out.Details.Prefill)
}

// meanLoss averages -logprob over the scored prefill tokens. A prompt of a
// single token has nothing to predict; its loss is 0 (perplexity 1).
func meanLoss(prefill []prefillToken) (detect.Loss, error) {
	if len(prefill) == 0 {
		return detect.Loss{}, detect.ErrEmptyText
	}
	var sum float64
	var scored int
	for _, tok := range prefill {
		if tok.Logprob == nil {
			continue
		}
		sum -= *tok.Logprob
		scored++
	}
	if scored == 0 {
		if len(prefill) > 1 {
			return detect.Loss{}, fmt.Errorf("%w: no token carries a logprob", ErrMalformed)
		}
		return detect.Loss{Tokens: 1}, nil
	}
	return detect.Loss{Tokens: len(prefill), Mean: sum / float64(scored)}, nil
}
