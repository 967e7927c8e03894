package storage_provider

import (
	"path"
	"regexp"
	"strings"
)

var (
	bucketNameInvalidChars = regexp.MustCompile(`[^a-z0-9]`)
	objectKeyInvalidChars  = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

const maxObjectKeyLength = 255

// NormalizeBucketName replaces anything outside [a-z0-9] with a dash,
// upper case letters included. The result must be 3 to 63 characters.
func NormalizeBucketName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", validationError("bucket_name cannot be empty")
	}

	normalized := bucketNameInvalidChars.ReplaceAllString(name, "-")
	if len(normalized) < 3 || len(normalized) > 63 {
		return "", validationError("bucket_name length should between 3 and 63")
	}
	return normalized, nil
}

// NormalizeObjectKey keeps only the base name of key and replaces unsafe
// characters with a dash.
func NormalizeObjectKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", validationError("object_key cannot be empty")
	}

	base := path.Base(key)
	if base == "." || base == ".." || base == "/" || base == "" {
		return "", validationError("object_key cannot be empty")
	}

	normalized := objectKeyInvalidChars.ReplaceAllString(base, "-")
	if len(normalized) > maxObjectKeyLength {
		return "", validationError("object_key too long")
	}
	return normalized, nil
}

// NormalizeVisibility defaults to public and rejects anything else than
// public or private.
func NormalizeVisibility(visibility string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(visibility)) {
	case "", VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	default:
		return "", validationError("visibility must be public or private")
	}
}
