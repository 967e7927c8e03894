package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/api/ai_provider"
	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/observability"
)

const (
	sseDone        = "[DONE]"
	sseErrorPrefix = "[ERROR] "
)

// streamChunk is one SSE data frame. Failures mid-stream are sent as
// content prefixed with sseErrorPrefix so clients only parse one shape.
type streamChunk struct {
	Content string `json:"content"`
}

func streamErrorMessage(err error) string {
	var upErr *ai_provider.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Message
	}
	return err.Error()
}

func (a *API) aiProvider() (ai_provider.AIProvider, error) {
	if a.providerOpts.AI != nil {
		return a.providerOpts.AI, nil
	}

	p, err := ai_provider.NewOpenAIProvider(a.config.AI, a.httpClient)
	if err != nil {
		if errors.Is(err, ai_provider.ErrNotConfigured) {
			return nil, serviceUnavailableError(apierrors.ErrorCodeAIDisabled, "AI service not configured")
		}
		return nil, internalServerError("AI service error").WithInternalError(err)
	}
	return p, nil
}

func aiError(err error) error {
	var imgErr *ai_provider.InvalidImageInputError
	if errors.As(err, &imgErr) {
		return badRequestError(apierrors.ErrorCodeInvalidImageInput, "Invalid image input: %s", imgErr.Message).WithInternalError(err)
	}

	var upErr *ai_provider.UpstreamError
	if errors.As(err, &upErr) {
		return badGatewayError(apierrors.ErrorCodeAIUpstream, "%s", upErr.Message).WithInternalError(err)
	}

	return badRequestError(apierrors.ErrorCodeValidationFailed, "%s", err.Error())
}

// AIGenerateText runs a chat completion. With stream set the deltas are
// sent as server-sent events.
func (a *API) AIGenerateText(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	params := &ai_provider.TextRequest{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}
	if len(params.Messages) == 0 {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "messages is required")
	}

	p, err := a.aiProvider()
	if err != nil {
		return err
	}

	if !params.Stream {
		res, err := p.GenerateText(ctx, params)
		if err != nil {
			return aiError(err)
		}
		return sendJSON(w, http.StatusOK, res)
	}

	stream, err := p.StreamText(ctx, params)
	if err != nil {
		return aiError(err)
	}
	defer stream.Close()

	observability.LogEntrySetField(r, "model", params.Model)
	return writeEventStream(w, r, stream)
}

// writeEventStream copies the deltas of stream to w. Once the first event
// is written errors can no longer change the status, so they are sent as an
// error event.
func writeEventStream(w http.ResponseWriter, r *http.Request, stream *ai_provider.TextStream) error {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(data string) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}

	for {
		content, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			observability.GetLogEntry(r).WithError(err).Warn("text stream failed")
			b, _ := json.Marshal(streamChunk{Content: sseErrorPrefix + streamErrorMessage(err)})
			if werr := send(string(b)); werr != nil {
				return nil
			}
			break
		}

		b, err := json.Marshal(streamChunk{Content: content})
		if err != nil {
			return nil
		}
		if err := send(string(b)); err != nil {
			// client went away
			return nil
		}
	}

	_ = send(sseDone)
	return nil
}

// AIGenerateImage generates an image, or edits the first image given.
func (a *API) AIGenerateImage(w http.ResponseWriter, r *http.Request) error {
	params := &ai_provider.ImageRequest{}
	if err := retrieveRequestParams(r, params); err != nil {
		var imgErr *ai_provider.InvalidImageInputError
		if errors.As(err, &imgErr) {
			return aiError(imgErr)
		}
		return err
	}

	p, err := a.aiProvider()
	if err != nil {
		return err
	}

	res, err := p.GenerateImage(r.Context(), params)
	if err != nil {
		return aiError(err)
	}
	return sendJSON(w, http.StatusOK, res)
}
