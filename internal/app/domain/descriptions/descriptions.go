// Package descriptions talks to the natural-language Description Service that writes challenge
// titles and descriptions.
package descriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	generativeAI "github.com/FACorreiaa/go-genai-sdk/lib"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

// ErrMalformedResponse is returned when the service answered with an unusable payload.
var ErrMalformedResponse = errors.New("malformed description response")

// Request describes the challenge to write.
type Request struct {
	Category       models.Category
	POIName        string
	DistanceMeters float64
}

// Response is the service payload. Fallback asks the caller to use its canned template.
type Response struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Reward      int    `json:"reward"`
	Fallback    bool   `json:"fallback"`
}

// Describer is the Description Service contract.
type Describer interface {
	Describe(ctx context.Context, req Request) (Response, error)
}

// DisabledDescriber always asks for the fallback template. Used when no API key is configured.
type DisabledDescriber struct{}

func (DisabledDescriber) Describe(context.Context, Request) (Response, error) {
	return Response{Fallback: true}, nil
}

type llmClient interface {
	GenerateResponse(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var _ Describer = (*GeminiDescriber)(nil)

// GeminiDescriber generates descriptions with Gemini and memoizes them per category, POI name
// and 100 m distance band.
type GeminiDescriber struct {
	client llmClient
	memo   *cache.Cache
	logger *zap.Logger
}

// New returns a Gemini-backed describer, or DisabledDescriber when apiKey is empty or the client
// cannot be created.
func New(ctx context.Context, apiKey string, memoTTL time.Duration, logger *zap.Logger) Describer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if apiKey == "" {
		logger.Info("GEMINI_API_KEY not set, description service disabled")
		return DisabledDescriber{}
	}
	client, err := generativeAI.NewLLMChatClient(ctx, apiKey)
	if err != nil {
		logger.Error("Failed to initialize AI client, description service disabled", zap.Error(err))
		return DisabledDescriber{}
	}
	return newGeminiDescriber(client, memoTTL, logger)
}

func newGeminiDescriber(client llmClient, memoTTL time.Duration, logger *zap.Logger) *GeminiDescriber {
	if memoTTL <= 0 {
		memoTTL = 30 * time.Minute
	}
	return &GeminiDescriber{
		client: client,
		memo:   cache.New(memoTTL, 2*memoTTL),
		logger: logger,
	}
}

func memoKey(req Request) string {
	band := int(math.Round(req.DistanceMeters / 100))
	return fmt.Sprintf("%s|%s|%d", req.Category, strings.ToLower(req.POIName), band)
}

func buildPrompt(req Request) string {
	return fmt.Sprintf(`You write short location-based challenges for an outdoor exploration game.
Write one challenge for a %s called "%s" that is %.0f meters away from the player.
The player must go there and record a short video completing the challenge.
Respond only with JSON in this exact shape:
{"title": "at most 6 words", "description": "one or two sentences", "reward": integer between 65 and 130}`,
		strings.ReplaceAll(string(req.Category), "_", " "), req.POIName, req.DistanceMeters)
}

// cleanJSONResponse strips markdown code fences the model sometimes wraps JSON in.
func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	if start := strings.Index(s, "{"); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return strings.TrimSpace(s)
}

// Describe asks Gemini for a challenge description.
func (d *GeminiDescriber) Describe(ctx context.Context, req Request) (Response, error) {
	ctx, span := otel.Tracer("DescriptionService").Start(ctx, "Describe", trace.WithAttributes(
		attribute.String("challenge.category", string(req.Category)),
		attribute.String("poi.name", req.POIName),
		attribute.Float64("distance.meters", req.DistanceMeters),
	))
	defer span.End()

	key := memoKey(req)
	if cached, found := d.memo.Get(key); found {
		if resp, ok := cached.(Response); ok {
			span.SetAttributes(attribute.Bool("memo.hit", true))
			return resp, nil
		}
	}

	prompt := buildPrompt(req)
	start := time.Now()
	response, err := d.client.GenerateResponse(ctx, prompt, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.8),
		MaxOutputTokens: 512,
	})
	latency := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to generate description")
		return Response{}, fmt.Errorf("failed to generate description: %w", err)
	}

	var txt string
	if response != nil {
		for _, candidate := range response.Candidates {
			if candidate != nil && candidate.Content != nil && len(candidate.Content.Parts) > 0 && candidate.Content.Parts[0] != nil {
				txt = candidate.Content.Parts[0].Text
				break
			}
		}
	}
	if txt == "" {
		span.SetStatus(codes.Error, "Empty response from AI")
		return Response{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var out Response
	if err := json.Unmarshal([]byte(cleanJSONResponse(txt)), &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to parse description JSON")
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(out.Title) == "" || strings.TrimSpace(out.Description) == "" || out.Reward <= 0 {
		span.SetStatus(codes.Error, "Incomplete description payload")
		return Response{}, fmt.Errorf("%w: missing title, description or reward", ErrMalformedResponse)
	}

	d.logger.Debug("Description generated",
		zap.String("category", string(req.Category)),
		zap.String("poi_name", req.POIName),
		zap.Duration("latency", latency))
	span.SetStatus(codes.Ok, "Description generated")

	d.memo.Set(key, out, cache.DefaultExpiration)
	return out, nil
}
