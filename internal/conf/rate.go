package conf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const defaultOverTime = time.Minute

// Rate is a number of events allowed over a window, written as "30/1m".
// A bare number is read as events per minute.
type Rate struct {
	Events   float64       `json:"events,omitempty"`
	OverTime time.Duration `json:"over_time,omitempty"`
}

// Decode is used by envconfig to parse the env-config string to a Rate value.
func (r *Rate) Decode(value string) error {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		r.Events = f
		r.OverTime = defaultOverTime
		return nil
	}
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return fmt.Errorf("rate: value does not match rate syntax %q", value)
	}

	// 52 because the uint needs to fit in a float64
	e, err := strconv.ParseUint(parts[0], 10, 52)
	if err != nil {
		return fmt.Errorf("rate: events part of rate value %q failed to parse as uint64: %w", value, err)
	}

	d, err := time.ParseDuration(parts[1])
	if err != nil {
		return fmt.Errorf("rate: over-time part of rate value %q failed to parse as duration: %w", value, err)
	}
	if d <= 0 {
		return fmt.Errorf("rate: over-time part of rate value %q must be positive", value)
	}

	r.Events = float64(e)
	r.OverTime = d
	return nil
}

// PerSecond returns the refill rate of a token bucket sized for r.
func (r *Rate) PerSecond() float64 {
	if r.OverTime <= 0 {
		return r.Events / defaultOverTime.Seconds()
	}
	return r.Events / r.OverTime.Seconds()
}

// Burst returns the bucket size, at least one event.
func (r *Rate) Burst() int {
	if r.Events < 1 {
		return 1
	}
	return int(r.Events)
}

func (r *Rate) String() string {
	if r.OverTime == 0 {
		return fmt.Sprintf("%f", r.Events)
	}
	return fmt.Sprintf("%d/%s", uint64(r.Events), r.OverTime.String())
}
