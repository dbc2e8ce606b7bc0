// Package openai implements the generative backend on top of the OpenAI
// chat completion API (or any compatible endpoint).
package openai

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/grillo/pkg/backend"
	"github.com/go-go-golems/grillo/pkg/chat"
)

const DefaultModel = go_openai.GPT3Dot5Turbo

type Generator struct {
	client *go_openai.Client
	model  string
}

var _ backend.Generator = (*Generator)(nil)

type GeneratorOption func(*Generator)

func WithModel(model string) GeneratorOption {
	return func(g *Generator) {
		g.model = model
	}
}

func WithBaseURL(baseURL string, apiKey string) GeneratorOption {
	return func(g *Generator) {
		config := go_openai.DefaultConfig(apiKey)
		config.BaseURL = baseURL
		g.client = go_openai.NewClientWithConfig(config)
	}
}

func New(apiKey string, options ...GeneratorOption) *Generator {
	ret := &Generator{
		client: go_openai.NewClient(apiKey),
		model:  DefaultModel,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (g *Generator) Generate(ctx context.Context, req backend.Request) (string, error) {
	msg := go_openai.ChatCompletionMessage{
		Role:    go_openai.ChatMessageRoleUser,
		Content: req.FullPrompt(),
	}

	if att := req.Attachment; att != nil {
		switch att.Kind {
		case chat.AttachmentImage:
			msg = go_openai.ChatCompletionMessage{
				Role: go_openai.ChatMessageRoleUser,
				MultiContent: []go_openai.ChatMessagePart{
					{
						Type: go_openai.ChatMessagePartTypeText,
						Text: req.FullPrompt(),
					},
					{
						Type: go_openai.ChatMessagePartTypeImageURL,
						ImageURL: &go_openai.ChatMessageImageURL{
							URL:    att.URI,
							Detail: go_openai.ImageURLDetailAuto,
						},
					},
				},
			}
		case chat.AttachmentFile:
			// Chat completions take no raw file input; reference it inline.
			msg.Content = fmt.Sprintf("%s\n\n[Attached file: %s (%s)]", req.FullPrompt(), att.Name, att.URI)
		}
	}

	resp, err := g.client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: []go_openai.ChatCompletionMessage{msg},
	})
	if err != nil {
		return "", errors.Wrap(err, "openai generation failed")
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("openai returned no usable text")
	}

	text := resp.Choices[0].Message.Content
	log.Debug().Str("model", g.model).Int("response_length", len(text)).Msg("openai generation complete")
	return text, nil
}
