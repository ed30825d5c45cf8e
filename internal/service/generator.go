package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/logger"
	"github.com/cloo-solutions/strom/internal/telemetry"
)

// DefaultSystemPrompt frames the model as a grounded project assistant.
const DefaultSystemPrompt = `You are a project research assistant. Answer questions about projects using only the context you are given.
Write the answer as short bullet points in the "response" array.
Set "is_greeting" when the message is a greeting or unrelated to any project.
Set "exists_in_data" when the context describes the project and "exists_elsewhere" when it appears to exist outside the dataset.
Only cite sources that appear in the available sources list, copied exactly.`

// CompletionRequest is a single prompt sent to a language model.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// CompletionEndpoint returns the raw text a language model produced.
// Retryable failures wrap domain.ErrGenerationTransport.
type CompletionEndpoint interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// GenerationParams are the sampling parameters for one answer.
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// GeneratorConfig tunes prompt and retry behavior.
type GeneratorConfig struct {
	SystemPrompt   string
	MaxRetries     uint64
	InitialBackoff time.Duration
	CallTimeout    time.Duration
	Defaults       GenerationParams
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		SystemPrompt:   DefaultSystemPrompt,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		CallTimeout:    30 * time.Second,
		Defaults:       GenerationParams{Temperature: 0.3, MaxTokens: 1000, TopP: 1.0},
	}
}

// GeneratorService produces schema-valid answers from retrieved context.
type GeneratorService struct {
	endpoint CompletionEndpoint
	cfg      GeneratorConfig
	log      *logger.Logger
}

func NewGeneratorService(endpoint CompletionEndpoint, cfg GeneratorConfig, log *logger.Logger) *GeneratorService {
	d := DefaultGeneratorConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = d.SystemPrompt
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = d.InitialBackoff
	}
	if cfg.Defaults.MaxTokens <= 0 {
		cfg.Defaults.MaxTokens = d.Defaults.MaxTokens
	}
	if cfg.Defaults.TopP <= 0 {
		cfg.Defaults.TopP = d.Defaults.TopP
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GeneratorService{endpoint: endpoint, cfg: cfg, log: log}
}

var (
	answerSchema     = newAnswerSchema()
	answerSchemaJSON = mustMarshal(answerSchema)
	resolvedSchema   = mustResolve(answerSchema)
)

func newAnswerSchema() *jsonschema.Schema {
	str := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "string", Description: desc}
	}
	boolean := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "boolean", Description: desc}
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"response": {
				Type:        "array",
				Description: "Bullet-point answer to the question",
				Items:       str(""),
			},
			"is_greeting":      boolean("Whether the message is a greeting or unrelated to a project"),
			"exists_in_data":   boolean("Does this project exist in the current dataset?"),
			"exists_elsewhere": boolean("Does this project seem to exist outside of the dataset (e.g., online)?"),
			"relevant_projects": {
				Type:        "array",
				Description: "IDs of relevant similar projects",
				Items:       str(""),
			},
			"sources": {
				Type:        "array",
				Description: "Sources backing the answer, copied from the available sources",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"source_name": str("Project name"),
						"source_url":  str("Project URL"),
					},
				},
			},
		},
		Required: []string{"response", "is_greeting", "exists_in_data", "exists_elsewhere", "relevant_projects", "sources"},
	}
}

func mustMarshal(s *jsonschema.Schema) string {
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("service: marshal answer schema: %v", err))
	}
	return string(b)
}

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	r, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("service: resolve answer schema: %v", err))
	}
	return r
}

// Generate asks the model for a structured answer. It never fails: transport
// errors are retried with backoff and anything unrecoverable yields
// domain.FallbackAnswer.
func (g *GeneratorService) Generate(ctx context.Context, query string, ac *domain.AssembledContext, params GenerationParams) domain.StructuredAnswer {
	ctx, span := telemetry.StartSpan(ctx, "GeneratorService.Generate", telemetry.SpanAttributes{
		Operation: "generate",
	})
	defer span.End()

	req, err := g.buildRequest(query, ac, g.withDefaults(params))
	if err != nil {
		g.log.Error("failed to build prompt", "error", err)
		return domain.FallbackAnswer()
	}

	raw, err := g.complete(ctx, req)
	if err != nil {
		span.SetError(err)
		telemetry.CaptureError(ctx, err)
		g.log.Error("generation request failed", "error", err)
		return domain.FallbackAnswer()
	}

	answer, err := ParseAnswer(raw)
	if err != nil {
		span.SetError(err)
		telemetry.CaptureError(ctx, err)
		g.log.Warn("model reply rejected", "error", err, "reply_chars", len(raw))
		return domain.FallbackAnswer()
	}
	return answer
}

func (g *GeneratorService) withDefaults(p GenerationParams) GenerationParams {
	if p.Temperature < 0 {
		p.Temperature = g.cfg.Defaults.Temperature
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = g.cfg.Defaults.MaxTokens
	}
	if p.TopP <= 0 {
		p.TopP = g.cfg.Defaults.TopP
	}
	return p
}

// DefaultParams returns the configured sampling parameters.
func (g *GeneratorService) DefaultParams() GenerationParams {
	return g.cfg.Defaults
}

func (g *GeneratorService) buildRequest(query string, ac *domain.AssembledContext, p GenerationParams) (CompletionRequest, error) {
	if ac == nil {
		ac = domain.NewAssembledContext()
	}
	sources, err := json.Marshal(ac.AvailableSources)
	if err != nil {
		return CompletionRequest{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User question:\n%s\n\n", strings.TrimSpace(query))
	fmt.Fprintf(&b, "Context:\n%s\n\n", strings.Join(ac.ContextTexts, "\n"))
	fmt.Fprintf(&b, "Available sources:\n%s\n\n", sources)
	b.WriteString("IMPORTANT: Respond with valid JSON that matches this schema:\n")
	b.WriteString(answerSchemaJSON)
	b.WriteString("\nYour entire response must be valid JSON only, no other text.")

	return CompletionRequest{
		System:      g.cfg.SystemPrompt,
		User:        b.String(),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		TopP:        p.TopP,
	}, nil
}

func (g *GeneratorService) complete(ctx context.Context, req CompletionRequest) (string, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.cfg.InitialBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, g.cfg.MaxRetries), ctx)

	attempt := 0
	return backoff.RetryWithData(func() (string, error) {
		attempt++
		callCtx := ctx
		if g.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
			defer cancel()
		}

		out, err := g.endpoint.Complete(callCtx, req)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, domain.ErrGenerationTransport) || errors.Is(err, context.DeadlineExceeded) {
			g.log.Warn("transient generation failure", "attempt", attempt, "error", err)
			return "", err
		}
		return "", backoff.Permanent(err)
	}, policy)
}

// ParseAnswer decodes and repairs a model reply into a schema-valid answer.
func ParseAnswer(raw string) (domain.StructuredAnswer, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return domain.StructuredAnswer{}, domain.Wrap(domain.ErrGenerationSchema, err)
	}
	repairAnswer(obj)
	if err := resolvedSchema.Validate(obj); err != nil {
		return domain.StructuredAnswer{}, domain.Wrap(domain.ErrGenerationSchema, err)
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return domain.StructuredAnswer{}, domain.Wrap(domain.ErrGenerationSchema, err)
	}
	var answer domain.StructuredAnswer
	if err := json.Unmarshal(b, &answer); err != nil {
		return domain.StructuredAnswer{}, domain.Wrap(domain.ErrGenerationSchema, err)
	}
	if answer.RelevantProjects == nil {
		answer.RelevantProjects = []string{}
	}
	if answer.Sources == nil {
		answer.Sources = []domain.Source{}
	}
	return answer, nil
}

func decodeObject(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj, nil
	}

	text = stripFences(text)
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := balancedObjectEnd(text, start); end > start {
			obj = nil
			if err := json.Unmarshal([]byte(text[start:end]), &obj); err == nil && obj != nil {
				return obj, nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, errors.New("no JSON object found in reply")
}

func stripFences(text string) string {
	switch {
	case strings.HasPrefix(text, "```json"):
		text = text[len("```json"):]
	case strings.HasPrefix(text, "```"):
		text = text[len("```"):]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// balancedObjectEnd returns the index just past the brace closing the object
// opened at start, or -1. Braces inside JSON strings are ignored.
func balancedObjectEnd(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func repairAnswer(obj map[string]any) {
	for _, key := range []string{"is_greeting", "exists_in_data", "exists_elsewhere"} {
		if v, ok := obj[key]; !ok || v == nil {
			obj[key] = false
		}
	}
	for _, key := range []string{"relevant_projects", "sources"} {
		if v, ok := obj[key]; !ok || v == nil {
			obj[key] = []any{}
		}
	}

	switch v := obj["response"].(type) {
	case []any:
	case string:
		obj["response"] = []any{v}
	default:
		obj["response"] = []any{domain.FallbackResponse}
	}
}
