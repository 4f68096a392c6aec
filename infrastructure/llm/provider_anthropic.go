package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicDefaultModel is used when an anthropic client is built without a
// model.
const AnthropicDefaultModel = "claude-sonnet-4-20250514"

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

type anthropicProvider struct {
	modelHolder
	client     anthropic.Client
	classifier ErrorClassifier
}

func newAnthropicProvider(cfg ClientConfig) (CoreLLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := cfg.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		u, err := ValidateBaseURL(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		opts = append(opts, option.WithBaseURL(u))
	}
	if t := ValidateTimeout(cfg.Timeout); t > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: t}))
	}

	return &anthropicProvider{
		modelHolder: modelHolder{model: model},
		client:      anthropic.NewClient(opts...),
		classifier:  ErrorClassifier{Provider: "anthropic"},
	}, nil
}

// DoRequest sends a single user message through the Messages API.
func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := ParseRequestOptions(opts, p.GetModel())

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(o.Model),
		MaxTokens: int64(o.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if o.Temperature != nil {
		// Anthropic accepts [0, 1].
		params.Temperature = anthropic.Float(clamp(*o.Temperature, 0, 1))
	}
	if o.TopP != nil {
		params.TopP = anthropic.Float(*o.TopP)
	}
	if o.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: o.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	content := b.String()
	if content == "" {
		return "", 0, 0, NewProviderError("anthropic", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}

	return content,
		estimateOr(int(msg.Usage.InputTokens), prompt),
		estimateOr(int(msg.Usage.OutputTokens), content),
		nil
}

func (p *anthropicProvider) handleError(err error) error {
	if isContextError(err) {
		return p.classifier.ClassifyContextError(err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		// 529 is Anthropic's "overloaded" status and is handled as a server
		// error by the classifier.
		return p.classifier.ClassifyHTTPError(apiErr.StatusCode, http.StatusText(apiErr.StatusCode), err)
	}
	return NewProviderError("anthropic", ErrorTypeNetwork, 0, "request failed", err)
}
