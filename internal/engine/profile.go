package engine

import (
	"fmt"
	"math"
	"time"
)

// DefaultGracefulStop is how long in-flight iterations may run after the
// schedule ends.
const DefaultGracefulStop = 10 * time.Second

// Stage ramps the number of active VUs linearly to Target over Duration.
type Stage struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
	Target   int           `json:"target" yaml:"target"`
}

// Profile is a load shape: either a fixed number of VUs for Duration, or a
// list of Stages.
type Profile struct {
	VUs          int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration     time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Stages       []Stage       `json:"stages,omitempty" yaml:"stages,omitempty"`
	GracefulStop time.Duration `json:"graceful_stop,omitempty" yaml:"graceful_stop,omitempty"`
}

// Fixed returns a constant-VU profile.
func Fixed(vus int, d time.Duration) Profile {
	return Profile{VUs: vus, Duration: d}
}

// Staged returns a ramping profile.
func Staged(stages ...Stage) Profile {
	return Profile{Stages: stages}
}

// Validate rejects profiles that cannot run.
func (p Profile) Validate() error {
	if len(p.Stages) == 0 {
		if p.VUs < 1 {
			return fmt.Errorf("profile needs at least 1 VU, got %d", p.VUs)
		}
		if p.Duration <= 0 {
			return fmt.Errorf("profile duration must be positive, got %s", p.Duration)
		}
		return nil
	}
	if p.MaxVUs() < 1 {
		return fmt.Errorf("no stage targets more than 0 VUs")
	}
	for i, s := range p.Stages {
		if s.Duration < 0 || s.Target < 0 {
			return fmt.Errorf("stage %d: negative duration or target", i+1)
		}
	}
	if p.TotalDuration() <= 0 {
		return fmt.Errorf("stages have no duration")
	}
	return nil
}

// MaxVUs is the largest number of concurrently active VUs.
func (p Profile) MaxVUs() int {
	if len(p.Stages) == 0 {
		return p.VUs
	}
	max := 0
	for _, s := range p.Stages {
		if s.Target > max {
			max = s.Target
		}
	}
	return max
}

// TotalDuration is the scheduled length, graceful stop excluded.
func (p Profile) TotalDuration() time.Duration {
	if len(p.Stages) == 0 {
		return p.Duration
	}
	var total time.Duration
	for _, s := range p.Stages {
		total += s.Duration
	}
	return total
}

// TargetAt returns how many VUs should be active elapsed into the run.
// Stages start from 0 VUs and interpolate linearly, rounding down.
func (p Profile) TargetAt(elapsed time.Duration) int {
	if len(p.Stages) == 0 {
		if elapsed < p.Duration {
			return p.VUs
		}
		return 0
	}
	from := 0
	var start time.Duration
	for _, s := range p.Stages {
		end := start + s.Duration
		if elapsed < end {
			progress := float64(elapsed-start) / float64(s.Duration)
			return from + int(math.Floor(float64(s.Target-from)*progress))
		}
		from = s.Target
		start = end
	}
	return from
}

func (p Profile) gracefulStop() time.Duration {
	if p.GracefulStop > 0 {
		return p.GracefulStop
	}
	return DefaultGracefulStop
}

// String renders the profile for logs.
func (p Profile) String() string {
	if len(p.Stages) == 0 {
		return fmt.Sprintf("%d VUs for %s", p.VUs, p.Duration)
	}
	return fmt.Sprintf("%d stages, up to %d VUs over %s", len(p.Stages), p.MaxVUs(), p.TotalDuration())
}
