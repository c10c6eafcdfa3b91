package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultVisionModel is used when no model is configured.
const DefaultVisionModel = "gpt-4o-mini"

const visionPrompt = "This image is a login captcha. Reply with the characters it shows and nothing else."

// VisionRecognizer reads captchas with a vision-capable chat model behind an
// OpenAI-compatible API.
type VisionRecognizer struct {
	client openai.Client
	model  string
}

// NewVisionRecognizer creates a recognizer. baseURL may be empty for the
// public OpenAI API.
func NewVisionRecognizer(apiKey, baseURL, model string) (*VisionRecognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via config or OPENAI_API_KEY environment variable)")
	}
	if model == "" {
		model = DefaultVisionModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &VisionRecognizer{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Recognize sends image as a data URL and keeps the letters and digits of
// the reply.
func (v *VisionRecognizer) Recognize(ctx context.Context, image []byte) (Recognition, error) {
	dataURL := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)

	completion, err := v.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(v.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(visionPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		return Recognition{}, fmt.Errorf("vision request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Recognition{}, &ServiceError{Message: "no choices in completion"}
	}

	return Recognition{
		Text: alphanumeric(completion.Choices[0].Message.Content),
		ID:   completion.ID,
	}, nil
}

func alphanumeric(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, s)
}
