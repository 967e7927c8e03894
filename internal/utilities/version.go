package utilities

import (
	"context"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Version is set at build time with -ldflags "-X ...utilities.Version=v1.2.3".
var Version string

// VersionString is Version, or "unknown version" for local builds.
func VersionString() string {
	if v := strings.TrimSpace(Version); v != "" {
		return v
	}
	return "unknown version"
}

type buildVersion struct {
	raw                 string
	major, minor, patch uint64
	rc                  uint64
}

func (b *buildVersion) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("version", b.raw),
		attribute.String("major", strconv.FormatUint(b.major, 10)),
		attribute.String("minor", strconv.FormatUint(b.minor, 10)),
		attribute.String("patch", strconv.FormatUint(b.patch, 10)),
		attribute.String("rc", strconv.FormatUint(b.rc, 10)),
	}
}

// InitVersionMetrics publishes appbackend_build_info, a constant 1 gauge
// labelled with the parsed build version.
func InitVersionMetrics(ctx context.Context) error {
	return initVersionMetrics(ctx, Version)
}

func initVersionMetrics(ctx context.Context, ver string) error {
	bv, err := parseSemver(ver)
	if err != nil {
		bv = &buildVersion{raw: ver}
	}

	attrs := metric.WithAttributes(bv.attributes()...)
	_, err = otel.Meter("appbackend").Int64ObservableGauge(
		"appbackend_build_info",
		metric.WithDescription("Build version of the running server, always 1."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(1, attrs)
			return nil
		}),
	)
	return err
}

// parseSemver accepts "1.2.3", "v1.2.3" and release candidates such as
// "v1.4.0-rc.2" or "rc1.4.0".
func parseSemver(ver string) (*buildVersion, error) {
	ver = strings.TrimSpace(ver)
	normalized := ver
	switch {
	case strings.HasPrefix(normalized, "rc"):
		normalized = "v" + normalized[2:]
	case !strings.HasPrefix(normalized, "v"):
		normalized = "v" + normalized
	}

	sv, err := semver.NewVersion(normalized)
	if err != nil {
		return nil, err
	}

	bv := &buildVersion{
		raw:   ver,
		major: sv.Major(),
		minor: sv.Minor(),
		patch: sv.Patch(),
	}
	if pre := sv.Prerelease(); strings.HasPrefix(pre, "rc") {
		digits := strings.TrimLeft(strings.TrimPrefix(pre, "rc"), ".-")
		if i := strings.IndexAny(digits, ".-"); i >= 0 {
			digits = digits[:i]
		}
		if rc, err := strconv.ParseUint(digits, 10, 64); err == nil {
			bv.rc = rc
		}
	}
	return bv, nil
}
