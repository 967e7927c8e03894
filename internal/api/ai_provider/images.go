package ai_provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/funcsea/appbackend/internal/utilities"
)

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/webp": "webp",
}

// namedReader gives go-openai a file name and content type for the
// multipart upload.
type namedReader struct {
	*bytes.Reader
	name        string
	contentType string
}

func (r *namedReader) Name() string {
	return r.name
}

func (r *namedReader) ContentType() string {
	return r.contentType
}

// ParseDataURI decodes a base64 data URI and returns its bytes and content
// type. The content type defaults to image/png.
func ParseDataURI(dataURI string) ([]byte, string, error) {
	dataURI = strings.TrimSpace(dataURI)
	if dataURI == "" {
		return nil, "", invalidImageInput("Input image is empty.")
	}
	if strings.HasPrefix(dataURI, "http://") || strings.HasPrefix(dataURI, "https://") {
		return nil, "", invalidImageInput("URL input is not supported for image editing. Use a base64 data URI like `data:image/png;base64,...`.")
	}
	if !strings.HasPrefix(dataURI, "data:") {
		return nil, "", invalidImageInput("Only base64 data URI is supported for image editing. Example: `data:image/png;base64,...`.")
	}

	header, payload, ok := strings.Cut(dataURI, ",")
	if !ok {
		return nil, "", invalidImageInput("Invalid data URI: missing ',' separator.")
	}

	contentType := "image/png"
	meta := strings.TrimPrefix(header, "data:")
	if t, _, _ := strings.Cut(meta, ";"); strings.TrimSpace(t) != "" {
		contentType = strings.TrimSpace(t)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", invalidImageInput("Invalid base64 data in data URI.")
		}
	}
	return data, contentType, nil
}

func imageUpload(dataURI string, prefix string) (io.Reader, error) {
	data, contentType, err := ParseDataURI(dataURI)
	if err != nil {
		return nil, err
	}
	ext, ok := imageExtensions[strings.ToLower(contentType)]
	if !ok {
		ext = "png"
	}
	return &namedReader{
		Reader:      bytes.NewReader(data),
		name:        fmt.Sprintf("%s.%s", prefix, ext),
		contentType: contentType,
	}, nil
}

// DataURI encodes data with the given content type.
func DataURI(contentType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
}

// downloadAsDataURI fetches an image URL and returns it as a data URI. On
// failure the original URL is returned.
func (p *OpenAIProvider) downloadAsDataURI(ctx context.Context, url string) string {
	log := logrus.WithField("component", "ai_provider").WithField("url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.WithError(err).Warn("invalid image url, returning it unchanged")
		return url
	}

	res, err := p.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("failed to download image, returning original url")
		return url
	}
	defer utilities.DrainAndClose(res.Body)

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		log.WithField("status", res.StatusCode).Warn("failed to download image, returning original url")
		return url
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, p.maxImageBytes+1))
	if err != nil {
		log.WithError(err).Warn("failed to read image, returning original url")
		return url
	}
	if int64(len(data)) > p.maxImageBytes {
		log.Warn("image exceeds size limit, returning original url")
		return url
	}

	contentType := "image/png"
	if ct := res.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			contentType = mediaType
		}
	} else if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		contentType = sniffed
	}

	return DataURI(contentType, data)
}
