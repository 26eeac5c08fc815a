package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	providerOpenAI          = "openai"
	DefaultTranslationModel = "gpt-4o-mini"
)

const translatePrompt = "You are a live interpreter. Translate the user's text into %s. " +
	"Reply with the translation only, no quotes or commentary."

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAITranslator translates with a single chat completion per line.
type OpenAITranslator struct {
	client *openai.Client
	model  string
}

func NewOpenAITranslator(cfg OpenAIConfig) *OpenAITranslator {
	config := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultTranslationModel
	}
	return &OpenAITranslator{client: openai.NewClientWithConfig(config), model: model}
}

func (t *OpenAITranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrMissingText
	}
	targetLang = strings.TrimSpace(targetLang)
	if targetLang == "" {
		return "", fmt.Errorf("target language is required")
	}

	system := fmt.Sprintf(translatePrompt, targetLang)
	if src := strings.TrimSpace(sourceLang); src != "" && !strings.EqualFold(src, "AUTO") {
		system += " The source language is " + src + "."
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", upstream(providerOpenAI, 0, "no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return upstream(providerOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.Error()
		return upstream(providerOpenAI, reqErr.HTTPStatusCode, msg)
	}
	return upstream(providerOpenAI, 0, err.Error())
}
