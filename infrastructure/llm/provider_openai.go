package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// OpenAIDefaultModel is used when an openai client is built without a
	// model.
	OpenAIDefaultModel = "gpt-4.1-mini"

	// DeepSeekDefaultModel is used when a deepseek client is built without a
	// model.
	DeepSeekDefaultModel = "deepseek-chat"

	// DeepSeekBaseURL is DeepSeek's OpenAI-compatible endpoint.
	DeepSeekBaseURL = "https://api.deepseek.com"
)

func init() {
	RegisterProviderFactory("openai", func(cfg ClientConfig) (CoreLLM, error) {
		return newOpenAICompatible("openai", OpenAIDefaultModel, "", cfg)
	})
	RegisterProviderFactory("deepseek", func(cfg ClientConfig) (CoreLLM, error) {
		return newOpenAICompatible("deepseek", DeepSeekDefaultModel, DeepSeekBaseURL, cfg)
	})
}

// openAIProvider speaks the OpenAI chat-completions protocol. The same type
// serves any OpenAI-compatible endpoint; name only affects error messages.
type openAIProvider struct {
	modelHolder
	name       string
	client     *openai.Client
	classifier ErrorClassifier
}

func newOpenAICompatible(name, defaultModel, defaultBaseURL string, cfg ClientConfig) (*openAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if baseURL != "" {
		u, err := ValidateBaseURL(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		clientCfg.BaseURL = u
	}

	if t := ValidateTimeout(cfg.Timeout); t > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: t}
	}

	return &openAIProvider{
		modelHolder: modelHolder{model: model},
		name:        name,
		client:      openai.NewClientWithConfig(clientCfg),
		classifier:  ErrorClassifier{Provider: name},
	}, nil
}

// DoRequest sends a single-turn chat completion.
func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := ParseRequestOptions(opts, p.GetModel())

	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(prompt, o))
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, NewProviderError(p.name, ErrorTypeUnknown, 0, "", ErrNoResponseChoice)
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", 0, 0, NewProviderError(p.name, ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}

	return content,
		estimateOr(resp.Usage.PromptTokens, prompt),
		estimateOr(resp.Usage.CompletionTokens, content),
		nil
}

func (p *openAIProvider) buildRequest(prompt string, o RequestOptions) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if o.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: o.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     o.Model,
		Messages:  messages,
		MaxTokens: o.MaxTokens,
	}
	if o.Temperature != nil {
		req.Temperature = float32(*o.Temperature)
	}
	if o.TopP != nil {
		req.TopP = float32(*o.TopP)
	}
	if v, ok := toFloat64(o.Extra["frequency_penalty"]); ok {
		req.FrequencyPenalty = float32(clamp(v, -2, 2))
	}
	if v, ok := toFloat64(o.Extra["presence_penalty"]); ok {
		req.PresencePenalty = float32(clamp(v, -2, 2))
	}
	return req
}

func (p *openAIProvider) handleError(err error) error {
	if isContextError(err) {
		return p.classifier.ClassifyContextError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = "unknown error"
		}
		return p.classifier.ClassifyHTTPError(apiErr.HTTPStatusCode, msg, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.classifier.ClassifyHTTPError(reqErr.HTTPStatusCode, "request failed", err)
	}

	return NewProviderError(p.name, ErrorTypeNetwork, 0, "request failed", err)
}
