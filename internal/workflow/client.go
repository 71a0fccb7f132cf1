package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/workflow-translator/internal/metrics"
	"github.com/JakeFAU/workflow-translator/internal/translate"
)

const (
	runPath      = "/v1/workflows/run"
	responseMode = "streaming"
	errBodyLimit = 4 << 10

	// DefaultUser is sent as the end-user identifier when none is configured.
	DefaultUser = "fww"
)

// Config holds the connection settings for the workflow endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	User    string
	// Timeout bounds a whole request including the stream. Zero means no limit.
	Timeout       time.Duration
	MaxFrameBytes int
}

// StatusError reports a non-2xx response from the workflow endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("workflow returned status %d: %s", e.StatusCode, e.Body)
}

// Client submits chunks to the workflow and decodes the streamed result.
type Client struct {
	url      string
	apiKey   string
	user     string
	maxFrame int
	logger   *zap.Logger
	do       func(*http.Request) (*http.Response, error)
}

var _ translate.Submitter = (*Client)(nil)

type runRequest struct {
	Inputs       runInputs `json:"inputs"`
	User         string    `json:"user"`
	ResponseMode string    `json:"response_mode"`
}

type runInputs struct {
	TargetLang string `json:"target_lang"`
	SourceText string `json:"source_text"`
	SourceLang string `json:"source_lang"`
	Term       string `json:"term"`
}

// New validates cfg and builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("workflow base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("workflow api key is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("workflow timeout must be >= 0, got %s", cfg.Timeout)
	}
	if cfg.User == "" {
		cfg.User = DefaultUser
	}
	if cfg.MaxFrameBytes == 0 {
		cfg.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		url:      strings.TrimRight(cfg.BaseURL, "/") + runPath,
		apiKey:   cfg.APIKey,
		user:     cfg.User,
		maxFrame: cfg.MaxFrameBytes,
		logger:   logger,
		do:       hc.Do,
	}, nil
}

// Submit sends one chunk and returns the outputs of the terminal event.
func (c *Client) Submit(ctx context.Context, in translate.Request) (map[string]any, error) {
	start := time.Now()
	outputs, outcome, err := c.submit(ctx, in)
	metrics.ObserveWorkflowRequest(outcome, time.Since(start))
	return outputs, err
}

func (c *Client) submit(ctx context.Context, in translate.Request) (map[string]any, string, error) {
	body, err := json.Marshal(runRequest{
		Inputs: runInputs{
			TargetLang: in.TargetLang,
			SourceText: in.SourceText,
			SourceLang: in.SourceLang,
			Term:       in.Term,
		},
		User:         c.user,
		ResponseMode: responseMode,
	})
	if err != nil {
		return nil, metrics.OutcomeTransportError, fmt.Errorf("encode request: %w", err)
	}
	c.logger.Debug("sending workflow request", zap.String("url", c.url), zap.ByteString("body", body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, metrics.OutcomeTransportError, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(req)
	if err != nil {
		return nil, metrics.OutcomeTransportError, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode/100 != 2 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return nil, metrics.OutcomeHTTPError, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	outputs, err := NewDecoder(c.maxFrame, c.logger).Decode(resp.Body)
	switch {
	case errors.Is(err, translate.ErrNoTerminalEvent):
		return nil, metrics.OutcomeNoTerminal, err
	case err != nil:
		return nil, metrics.OutcomeDecodeError, err
	}
	return outputs, metrics.OutcomeSuccess, nil
}
