// Package gemini implements the generative backend on top of the Google
// GenAI API.
package gemini

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/go-go-golems/grillo/pkg/backend"
	"github.com/go-go-golems/grillo/pkg/chat"
)

const DefaultModel = "gemini-2.5-flash"

type Generator struct {
	client *genai.Client
	model  string
}

var _ backend.Generator = (*Generator)(nil)

type GeneratorOption func(*Generator)

func WithModel(model string) GeneratorOption {
	return func(g *Generator) {
		g.model = model
	}
}

func New(ctx context.Context, apiKey string, options ...GeneratorOption) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	ret := &Generator{
		client: client,
		model:  DefaultModel,
	}
	for _, option := range options {
		option(ret)
	}

	return ret, nil
}

func (g *Generator) Generate(ctx context.Context, req backend.Request) (string, error) {
	parts := []*genai.Part{
		{Text: req.FullPrompt()},
	}

	if att := req.Attachment; att != nil {
		mimeType := att.MediaType
		if mimeType == "" && att.Kind == chat.AttachmentImage {
			mimeType = "image/jpeg"
		}
		parts = append(parts, &genai.Part{
			FileData: &genai.FileData{
				FileURI:  att.URI,
				MIMEType: mimeType,
			},
		})
	}

	contents := []*genai.Content{
		{Parts: parts},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", errors.Wrap(err, "gemini generation failed")
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned no usable text")
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", errors.New("gemini returned no usable text")
	}

	log.Debug().Str("model", g.model).Int("response_length", len(text)).Msg("gemini generation complete")
	return text, nil
}
