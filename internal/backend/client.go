package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"TeachMe/internal/session"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Code       string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// Client sends one question at a time to the answering service.
type Client struct {
	code       string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer

	duration metric.Float64Histogram
	failures metric.Int64Counter
}

// NewClient creates a new answer service client
func NewClient(opts Options) *Client {
	if opts.Code == "" {
		opts.Code = DefaultCode
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("teachme/backend")
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter("teachme/backend")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	c := &Client{
		code:       opts.Code,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
	}

	var err error
	c.duration, err = opts.Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		c.logger.Warn("failed to create histogram", "error", err)
	}
	c.failures, err = opts.Meter.Int64Counter(
		"teachme.backend.errors",
		metric.WithDescription("Failed answer requests by error kind"),
	)
	if err != nil {
		c.logger.Warn("failed to create counter", "error", err)
	}
	return c
}

// Endpoint builds the answer URL for a role under baseURL.
func Endpoint(baseURL string, role session.Role) string {
	return fmt.Sprintf("%s/chat-service/%s/chat/answer", strings.TrimRight(baseURL, "/"), role)
}

// Ask posts question to the role's endpoint and returns the answer text.
// Failures are *BackendError, *TransportError or *ParseError.
func (c *Client) Ask(ctx context.Context, role session.Role, baseURL, question, identity string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "backend.ask",
		trace.WithAttributes(attribute.String("teachme.role", string(role))),
	)
	defer span.End()

	start := time.Now()
	endpoint := Endpoint(baseURL, role)

	answer, status, err := c.do(ctx, endpoint, AnswerRequest{
		Question: question,
		UserID:   identity,
		Code:     c.code,
	})

	attrs := metric.WithAttributes(
		attribute.String("teachme.role", string(role)),
		attribute.Int("http.response.status_code", status),
	)
	if c.duration != nil {
		c.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	}

	if err != nil {
		kind := Kind(err)
		if c.failures != nil {
			c.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("teachme.role", string(role)),
				attribute.String("error.kind", kind),
			))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		c.logger.Warn("answer request failed",
			"endpoint", endpoint, "role", role, "kind", kind, "status", status, "error", err)
		return "", err
	}

	c.logger.Info("answer received",
		"endpoint", endpoint, "role", role, "duration_ms", time.Since(start).Milliseconds())
	return answer, nil
}

func (c *Client) do(ctx context.Context, endpoint string, reqBody AnswerRequest) (string, int, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", 0, &TransportError{Message: err.Error(), Err: err}
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, &TransportError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, &TransportError{Message: "failed to read response: " + err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, &BackendError{Status: resp.StatusCode, Body: string(body)}
	}

	answer, err := decodeAnswer(body)
	return answer, resp.StatusCode, err
}

func decodeAnswer(body []byte) (string, error) {
	var apiResp AnswerResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", &ParseError{Reason: err.Error(), Body: string(body)}
	}
	if apiResp.Answer == nil {
		return "", &ParseError{Reason: "missing answer field", Body: string(body)}
	}
	if *apiResp.Answer == "" {
		return "", &ParseError{Reason: "empty answer", Body: string(body)}
	}
	return *apiResp.Answer, nil
}
