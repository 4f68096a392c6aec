// Package backend implements the generation, mutation, and judging
// backends on top of ports.LLMClient by rendering prompt templates and
// returning the model's raw reply.
package backend

import (
	"context"
	"fmt"
	"maps"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-spout/internal/ports"
)

// Skill names, sent to the client under the "skill" option and recorded in
// the usage log.
const (
	SkillGenerate = "generate"
	SkillMutate   = "mutate"
	SkillJudge    = "judge"
)

// Clients are the model clients used for each operation. One client may
// serve several roles.
type Clients struct {
	Generate ports.LLMClient `validate:"required"`
	Mutate   ports.LLMClient `validate:"required"`
	Judge    ports.LLMClient `validate:"required"`
}

// LLMBackend satisfies ports.GenerationBackend, ports.MutationBackend, and
// ports.JudgeBackend.
type LLMBackend struct {
	clients   Clients
	templates *Templates
	options   map[string]map[string]any
}

var (
	_ ports.GenerationBackend = (*LLMBackend)(nil)
	_ ports.MutationBackend   = (*LLMBackend)(nil)
	_ ports.JudgeBackend      = (*LLMBackend)(nil)
)

// Option configures an LLMBackend.
type Option func(*LLMBackend)

// WithTemplates replaces the built-in prompts.
func WithTemplates(t *Templates) Option {
	return func(b *LLMBackend) {
		if t != nil {
			b.templates = t
		}
	}
}

// WithCallOptions sets extra client options, such as temperature, for one
// skill. The skill key itself cannot be overridden.
func WithCallOptions(skill string, opts map[string]any) Option {
	return func(b *LLMBackend) {
		b.options[skill] = maps.Clone(opts)
	}
}

// New validates clients and builds the backend.
func New(clients Clients, opts ...Option) (*LLMBackend, error) {
	if err := validator.New().Struct(clients); err != nil {
		return nil, fmt.Errorf("backend clients: %w", err)
	}
	b := &LLMBackend{
		clients:   clients,
		templates: DefaultTemplates(),
		options:   make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Generate implements ports.GenerationBackend.
func (b *LLMBackend) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	if req.BatchSize < 1 {
		return "", fmt.Errorf("generate: batch size must be positive, got %d", req.BatchSize)
	}
	return b.call(ctx, b.clients.Generate, SkillGenerate, TemplateGenerate, req)
}

// Mutate implements ports.MutationBackend.
func (b *LLMBackend) Mutate(ctx context.Context, req ports.MutateRequest) (string, error) {
	if req.Variants < 1 {
		return "", fmt.Errorf("mutate: variants must be positive, got %d", req.Variants)
	}
	return b.call(ctx, b.clients.Mutate, SkillMutate, TemplateMutate, req)
}

// Judge implements ports.JudgeBackend.
func (b *LLMBackend) Judge(ctx context.Context, req ports.JudgeRequest) (string, error) {
	if req.Separator == "" {
		return "", fmt.Errorf("judge: separator cannot be empty")
	}
	return b.call(ctx, b.clients.Judge, SkillJudge, TemplateJudge, req)
}

func (b *LLMBackend) call(ctx context.Context, client ports.LLMClient, skill, tmpl string, data any) (string, error) {
	prompt, err := b.templates.render(tmpl, data)
	if err != nil {
		return "", fmt.Errorf("%s: render prompt: %w", skill, err)
	}

	opts := maps.Clone(b.options[skill])
	if opts == nil {
		opts = make(map[string]any, 1)
	}
	opts["skill"] = skill

	reply, err := client.Complete(ctx, prompt, opts)
	if err != nil {
		return "", ports.NewLLMError(client.GetModel(), skill, err)
	}
	return reply, nil
}
