package lambda

import (
	"bytes"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// domainPlaceholder is swapped for the request origin in SEO documents.
const domainPlaceholder = "{{DOMAIN}}"

const (
	cacheNoCache   = "no-cache"
	cacheImmutable = "public, max-age=31536000, immutable"
	cacheDefault   = "public, max-age=3600"
)

var staticContentTypes = map[string]string{
	".js":    "application/javascript",
	".css":   "text/css; charset=utf-8",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".map":   "application/json",
	".json":  "application/json",
	".txt":   "text/plain; charset=utf-8",
	".xml":   "application/xml",
	".html":  "text/html; charset=utf-8",
}

const fallbackIndex = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Application</title></head>
<body>
<h1>Application</h1>
<p>The service is running, but the frontend build is missing: index.html was not found in the static directory.</p>
</body>
</html>
`

func isStaticAsset(p string) bool {
	_, ok := staticContentTypes[strings.ToLower(path.Ext(p))]
	return ok
}

func isSEOPath(p string) bool {
	return p == "/blog" || strings.HasPrefix(p, "/blog/")
}

// isTextual reports whether a file can go out as a plain string body.
func isTextual(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		strings.HasPrefix(contentType, "application/javascript") ||
		strings.HasPrefix(contentType, "application/json") ||
		strings.HasPrefix(contentType, "application/xml") ||
		strings.HasPrefix(contentType, "image/svg+xml")
}

type staticSite struct {
	root string
}

func newStaticSite(root string) *staticSite {
	if root == "" {
		root = "static"
	}
	return &staticSite{root: root}
}

func (s *staticSite) read(p string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(p, "/"))))
}

func (s *staticSite) file(p string) *response {
	b, err := s.read(p)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).WithField("path", p).Error("unable to read static file")
		}
		return textResponse(http.StatusNotFound, "File not found")
	}

	ext := strings.ToLower(path.Ext(p))
	contentType := staticContentTypes[ext]
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}

	res := newResponse(http.StatusOK, contentType, b)
	res.Binary = !isTextual(contentType)

	switch {
	case ext == ".html":
		res.Headers["Cache-Control"] = cacheNoCache
	case strings.HasPrefix(p, "/assets/"):
		res.Headers["Cache-Control"] = cacheImmutable
	default:
		res.Headers["Cache-Control"] = cacheDefault
	}
	return res
}

// document serves a text file with the domain placeholder replaced.
func (s *staticSite) document(p, contentType, origin string) *response {
	b, err := s.read(p)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).WithField("path", p).Error("unable to read document")
			return textResponse(http.StatusInternalServerError, "Internal server error")
		}
		return textResponse(http.StatusNotFound, path.Base(p)+" not found")
	}

	res := newResponse(http.StatusOK, contentType, replaceDomain(b, origin))
	res.Headers["Cache-Control"] = cacheNoCache
	return res
}

// seoPage returns nil when no prerendered page exists for p.
func (s *staticSite) seoPage(p, origin string) *response {
	b, err := s.read(strings.TrimRight(p, "/") + "/index.html")
	if err != nil {
		return nil
	}

	res := newResponse(http.StatusOK, "text/html; charset=utf-8", replaceDomain(b, origin))
	res.Headers["Cache-Control"] = cacheNoCache
	return res
}

func (s *staticSite) spa() *response {
	b, err := s.read("/index.html")
	if err != nil {
		logrus.WithError(err).WithField("root", s.root).Warn("frontend index.html is missing")
		b = []byte(fallbackIndex)
	}

	res := newResponse(http.StatusOK, "text/html; charset=utf-8", b)
	res.Headers["Cache-Control"] = cacheNoCache
	return res
}

func replaceDomain(b []byte, origin string) []byte {
	if origin == "" {
		return b
	}
	return bytes.ReplaceAll(b, []byte(domainPlaceholder), []byte(origin))
}
