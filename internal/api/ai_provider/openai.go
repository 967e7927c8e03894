package ai_provider

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/funcsea/appbackend/internal/conf"
)

const defaultMaxImageBytes = 10 << 20

// AIProvider generates text and images through an OpenAI compatible API.
type AIProvider interface {
	GenerateText(ctx context.Context, req *TextRequest) (*TextResponse, error)
	StreamText(ctx context.Context, req *TextRequest) (*TextStream, error)
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error)
}

// OpenAIProvider is an AIProvider built on go-openai.
type OpenAIProvider struct {
	Config *conf.AIConfiguration

	api           *openai.Client
	client        *http.Client
	maxImageBytes int64
}

// NewOpenAIProvider returns a client for APP_AI_BASE_URL authenticated with
// APP_AI_KEY.
func NewOpenAIProvider(config conf.AIConfiguration, client *http.Client) (AIProvider, error) {
	if !config.Enabled() {
		return nil, ErrNotConfigured
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	clientConfig.HTTPClient = client

	maxImageBytes := config.MaxImageSize
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}

	return &OpenAIProvider{
		Config:        &config,
		api:           openai.NewClientWithConfig(clientConfig),
		client:        client,
		maxImageBytes: maxImageBytes,
	}, nil
}

func (p *OpenAIProvider) GenerateText(ctx context.Context, req *TextRequest) (*TextResponse, error) {
	req.ApplyDefaults(p.Config.TextModel)
	chatReq, err := req.chatRequest(false)
	if err != nil {
		return nil, err
	}

	res, err := p.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, upstreamError(err)
	}

	out := &TextResponse{Model: req.Model}
	if len(res.Choices) > 0 {
		out.Content = res.Choices[0].Message.Content
	}
	if res.Usage.TotalTokens > 0 {
		out.Usage = &Usage{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.TotalTokens,
		}
	}
	return out, nil
}

// TextStream yields content deltas of a streaming completion.
type TextStream struct {
	stream *openai.ChatCompletionStream
}

// Next returns the next non empty content delta. It returns io.EOF once the
// upstream stream is complete.
func (s *TextStream) Next() (string, error) {
	for {
		chunk, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", upstreamError(err)
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return chunk.Choices[0].Delta.Content, nil
		}
	}
}

func (s *TextStream) Close() error {
	return s.stream.Close()
}

func (p *OpenAIProvider) StreamText(ctx context.Context, req *TextRequest) (*TextStream, error) {
	req.ApplyDefaults(p.Config.TextModel)
	chatReq, err := req.chatRequest(true)
	if err != nil {
		return nil, err
	}

	stream, err := p.api.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, upstreamError(err)
	}
	return &TextStream{stream: stream}, nil
}

func (p *OpenAIProvider) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error) {
	req.ApplyDefaults(p.Config.ImageModel)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		res openai.ImageResponse
		err error
	)
	if len(req.Image) > 0 {
		// only the first image is sent, the edit endpoint takes a single file
		upload, uerr := imageUpload(req.Image[0], "image_1")
		if uerr != nil {
			return nil, uerr
		}
		for i, img := range req.Image[1:] {
			if _, _, verr := ParseDataURI(img); verr != nil {
				return nil, invalidImageInput("image[%d]: %s", i+1, verr.Error())
			}
		}
		res, err = p.api.CreateEditImage(ctx, openai.ImageEditRequest{
			Image:  upload,
			Prompt: req.Prompt,
			Model:  req.Model,
			N:      req.N,
			Size:   req.Size,
		})
	} else {
		res, err = p.api.CreateImage(ctx, openai.ImageRequest{
			Prompt:  req.Prompt,
			Model:   req.Model,
			N:       req.N,
			Size:    req.Size,
			Quality: req.Quality,
		})
	}
	if err != nil {
		return nil, upstreamError(err)
	}

	out := &ImageResponse{
		Images: make([]string, 0, len(res.Data)),
		Model:  req.Model,
	}
	if len(res.Data) > 0 {
		out.RevisedPrompt = res.Data[0].RevisedPrompt
	}
	for _, item := range res.Data {
		switch {
		case item.B64JSON != "":
			out.Images = append(out.Images, "data:image/png;base64,"+item.B64JSON)
		case item.URL != "":
			out.Images = append(out.Images, p.downloadAsDataURI(ctx, item.URL))
		}
	}
	return out, nil
}
