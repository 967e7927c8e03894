package ai_provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultTextModel   = "deepseek-v3.2"
	DefaultImageModel  = "gemini-2.5-flash-image"
	DefaultImageSize   = "1024x1024"
	DefaultQuality     = "standard"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096

	maxImages         = 4
	maxErrorBodyChars = 500
)

// ErrNotConfigured is returned when APP_AI_BASE_URL or APP_AI_KEY is missing.
var ErrNotConfigured = errors.New("AI service not configured")

// InvalidImageInputError reports an image parameter which is not a base64
// data URI.
type InvalidImageInputError struct {
	Message string
}

func (e *InvalidImageInputError) Error() string {
	return e.Message
}

func invalidImageInput(fmtString string, args ...interface{}) *InvalidImageInputError {
	return &InvalidImageInputError{Message: fmt.Sprintf(fmtString, args...)}
}

// UpstreamError is a failure reported by the model endpoint.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

// Message is a chat message whose content is either a string or a list of
// content parts.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// TextRequest is the body of a text generation call.
type TextRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Stream      bool      `json:"stream"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// ApplyDefaults fills the model, temperature and max tokens.
func (r *TextRequest) ApplyDefaults(defaultModel string) {
	if r.Model == "" {
		r.Model = defaultModel
	}
	if r.Model == "" {
		r.Model = DefaultTextModel
	}
	if r.Temperature == nil {
		t := float32(DefaultTemperature)
		r.Temperature = &t
	}
	if r.MaxTokens == nil {
		m := DefaultMaxTokens
		r.MaxTokens = &m
	}
}

func (r *TextRequest) chatRequest(stream bool) (openai.ChatCompletionRequest, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(r.Messages))
	for i, m := range r.Messages {
		msg, err := m.toOpenAI()
		if err != nil {
			return openai.ChatCompletionRequest{}, errors.Wrapf(err, "messages[%d]", i)
		}
		messages = append(messages, msg)
	}

	req := openai.ChatCompletionRequest{
		Model:    r.Model,
		Messages: messages,
		Stream:   stream,
	}
	if r.Temperature != nil {
		req.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		req.MaxTokens = *r.MaxTokens
	}
	return req, nil
}

func (m Message) toOpenAI() (openai.ChatCompletionMessage, error) {
	msg := openai.ChatCompletionMessage{Role: m.Role}
	raw := strings.TrimSpace(string(m.Content))
	if raw == "" || raw == "null" {
		return msg, nil
	}

	if raw[0] == '"' {
		if err := json.Unmarshal(m.Content, &msg.Content); err != nil {
			return msg, err
		}
		return msg, nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return msg, errors.New("content must be a string or a list of content parts")
	}
	for _, p := range parts {
		switch p.Type {
		case "", string(openai.ChatMessagePartTypeText):
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: p.Text,
			})
		case string(openai.ChatMessagePartTypeImageURL):
			if p.ImageURL == nil || p.ImageURL.URL == "" {
				return msg, errors.New("image_url part requires a url")
			}
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: p.ImageURL.URL},
			})
		default:
			return msg, fmt.Errorf("unsupported content part type %q", p.Type)
		}
	}
	return msg, nil
}

// Usage is the token accounting of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TextResponse is the result of a non streaming text generation.
type TextResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   *Usage `json:"usage,omitempty"`
}

// ImageInput is either a single data URI or a list of them.
type ImageInput []string

func (in *ImageInput) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*in = nil
		} else {
			*in = ImageInput{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return invalidImageInput("Each image must be a base64 data URI string.")
	}
	*in = ImageInput(many)
	return nil
}

// ImageRequest is the body of an image generation or edit call.
type ImageRequest struct {
	Prompt  string     `json:"prompt"`
	Image   ImageInput `json:"image,omitempty"`
	Model   string     `json:"model"`
	Size    string     `json:"size"`
	Quality string     `json:"quality"`
	N       int        `json:"n"`
}

// ApplyDefaults fills the model, size, quality and count.
func (r *ImageRequest) ApplyDefaults(defaultModel string) {
	if r.Model == "" {
		r.Model = defaultModel
	}
	if r.Model == "" {
		r.Model = DefaultImageModel
	}
	if r.Size == "" {
		r.Size = DefaultImageSize
	}
	if r.Quality == "" {
		r.Quality = DefaultQuality
	}
	if r.N == 0 {
		r.N = 1
	}
}

// Validate checks the prompt, quality and count.
func (r *ImageRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return invalidImageInput("prompt is required")
	}
	if r.Quality != "standard" && r.Quality != "hd" {
		return invalidImageInput("quality must be standard or hd")
	}
	if r.N < 1 || r.N > maxImages {
		return invalidImageInput("n must be between 1 and %d", maxImages)
	}
	return nil
}

// ImageResponse carries generated images as data URIs.
type ImageResponse struct {
	Images        []string `json:"images"`
	Model         string   `json:"model"`
	RevisedPrompt string   `json:"revised_prompt,omitempty"`
}

// ExtractErrorMessage pulls a readable message out of an upstream error
// body. It looks at error.message, message and detail in that order, also
// when the JSON object is embedded in a longer string, and falls back to
// the raw body cut to 500 characters.
func ExtractErrorMessage(body string) string {
	if msg := messageFromJSON(body); msg != "" {
		return msg
	}

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start != -1 && end > start {
		if msg := messageFromJSON(body[start : end+1]); msg != "" {
			return msg
		}
	}

	body = strings.TrimSpace(body)
	if r := []rune(body); len(r) > maxErrorBodyChars {
		return string(r[:maxErrorBodyChars])
	}
	return body
}

func messageFromJSON(s string) string {
	var data struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return ""
	}

	if len(data.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}
	if data.Message != "" {
		return data.Message
	}
	if len(data.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(data.Detail, &detail); err == nil && detail != "" {
			return detail
		}
		if string(data.Detail) != "null" {
			return string(data.Detail)
		}
	}
	return ""
}

// upstreamError converts a go-openai error into an UpstreamError.
func upstreamError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = ExtractErrorMessage(apiErr.Error())
		}
		return &UpstreamError{StatusCode: apiErr.HTTPStatusCode, Message: msg, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := string(reqErr.Body)
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &UpstreamError{StatusCode: reqErr.HTTPStatusCode, Message: ExtractErrorMessage(body), Err: err}
	}

	return &UpstreamError{Message: ExtractErrorMessage(err.Error()), Err: err}
}
