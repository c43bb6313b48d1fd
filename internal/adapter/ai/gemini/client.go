// Package gemini implements domain.Model on Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"github.com/sharow/sharow/internal/adapter/observability"
	"github.com/sharow/sharow/internal/config"
	"github.com/sharow/sharow/internal/domain"
)

const provider = "gemini"

// Client implements domain.Model with retries around generateContent.
type Client struct {
	cfg    config.Config
	client *genai.Client
	model  string
}

// New constructs a Gemini client from config.
func New(ctx context.Context, cfg config.Config) (*Client, error) {
	return newClient(ctx, cfg, genai.HTTPOptions{})
}

func newClient(ctx context.Context, cfg config.Config, httpOpts genai.HTTPOptions) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("op=gemini.New: %w: GEMINI_API_KEY missing", domain.ErrInvalidArgument)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.GeminiAPIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("op=gemini.New: %w", err)
	}
	return &Client{cfg: cfg, client: gc, model: cfg.GeminiModel}, nil
}

// getBackoffConfig returns a configured ExponentialBackOff based on the current environment.
func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()

	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier

	return expo
}

// Generate implements domain.Model.
func (c *Client) Generate(ctx domain.Context, req domain.ModelRequest) (string, error) {
	ctx, span := otel.Tracer("ai.gemini").Start(ctx, "gemini.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", c.model),
		attribute.Int("ai.history_turns", len(req.History)),
		attribute.Bool("ai.has_image", req.Image != nil),
	)

	contents := buildContents(req)
	var gcfg *genai.GenerateContentConfig
	if req.System != "" {
		gcfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser)}
	}

	start := time.Now()
	var text string
	attempt := 0
	operation := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.AITimeout)
		defer cancel()

		resp, err := c.client.Models.GenerateContent(callCtx, c.model, contents, gcfg)
		if err != nil {
			mapped, retry := classify(ctx, err)
			if !retry {
				return backoff.Permanent(mapped)
			}
			return mapped
		}
		text = resp.Text()
		return nil
	}
	notify := func(err error, next time.Duration) {
		slog.WarnContext(ctx, "gemini call failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("next_backoff", next),
			slog.Any("error", err))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(c.getBackoffConfig(), ctx), notify)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, domain.ErrUpstreamTimeout) {
			err = timeoutErr
		}
		observability.ObserveAIRequest(provider, "error", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "gemini generate failed",
			slog.String("model", c.model),
			slog.Int("attempts", attempt),
			slog.Any("error", err))
		return "", fmt.Errorf("op=gemini.Generate: %w", err)
	}
	observability.ObserveAIRequest(provider, "success", elapsed)
	slog.DebugContext(ctx, "gemini generate ok",
		slog.String("model", c.model),
		slog.Int("attempts", attempt),
		slog.Int("response_chars", len(text)),
		slog.Duration("elapsed", elapsed))
	return text, nil
}

func buildContents(req domain.ModelRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		role := genai.RoleUser
		if t.Role == domain.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text(), genai.Role(role)))
	}

	parts := make([]*genai.Part, 0, 2)
	if req.Image != nil {
		mime := req.Image.MIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, mime))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	return append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
}

var (
	timeoutErr = domain.NewAPIError(domain.ErrUpstreamTimeout, "AI_TIMEOUT",
		"The model took too long to respond, please try again")
	quotaErr = domain.NewAPIError(domain.ErrUpstreamRateLimit, "AI_QUOTA_EXCEEDED",
		"You have exceeded your Gemini API quota.").
		WithDetails("Please wait for your quota to reset or upgrade your Gemini API plan.")
)

// classify maps a genai error to a domain error and reports whether it is worth retrying.
func classify(ctx context.Context, err error) (error, bool) {
	if ctx.Err() != nil {
		return timeoutErr, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutErr, true
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr):
		apiErr = *apiErrPtr
	default:
		return domain.NewAPIError(domain.ErrUpstreamUnavailable, "AI_UNAVAILABLE",
			"The analysis service is temporarily unavailable, please try again shortly").WithDetails(err.Error()), true
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return quotaErr, false
	case apiErr.Code >= http.StatusInternalServerError:
		return domain.NewAPIError(domain.ErrUpstreamUnavailable, "AI_PROVIDER_ERROR", "Gemini API Error").
			WithDetails(apiErr.Message), true
	default:
		return domain.NewAPIError(domain.ErrInvalidArgument, "AI_REQUEST_REJECTED", "Gemini API Error").
			WithDetails(apiErr.Message), false
	}
}
