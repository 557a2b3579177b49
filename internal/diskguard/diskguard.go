// internal/diskguard/diskguard.go
//
// Storage pressure check for the shared root. A breach is a warning
// in the report, never an error: callers decide how to react, for
// example by refusing new provisioning.

package diskguard

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/kingrea/The-Relay/internal/logging"
)

// DefaultThresholdPercent applies when the caller passes no
// threshold.
const DefaultThresholdPercent = 80.0

// Report describes utilization of the storage root at check time.
type Report struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
	Threshold   float64 `json:"threshold"`
	Warning     bool    `json:"warning"`
}

// Guard measures utilization of a storage root.
type Guard struct {
	logger logging.Logger
	usage  func(path string) (*disk.UsageStat, error)
}

// Option customizes the guard.
type Option func(*Guard)

// WithLogger sets the structured sink.
func WithLogger(l logging.Logger) Option {
	return func(g *Guard) {
		g.logger = logging.OrNop(l)
	}
}

// WithUsageProbe replaces the filesystem probe, primarily for tests.
func WithUsageProbe(probe func(path string) (*disk.UsageStat, error)) Option {
	return func(g *Guard) {
		if probe != nil {
			g.usage = probe
		}
	}
}

// New creates a guard backed by the host filesystem statistics.
func New(opts ...Option) *Guard {
	g := &Guard{
		logger: logging.Nop(),
		usage:  disk.Usage,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check computes utilization of path against thresholdPercent.
// thresholdPercent <= 0 falls back to DefaultThresholdPercent.
// Utilization strictly above the threshold sets Warning and logs it;
// the error covers only probe failures.
func (g *Guard) Check(path string, thresholdPercent float64) (Report, error) {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultThresholdPercent
	}
	stat, err := g.usage(path)
	if err != nil {
		return Report{}, fmt.Errorf("diskguard: usage of %s: %w", path, err)
	}
	report := Report{
		Path:        path,
		TotalBytes:  stat.Total,
		UsedBytes:   stat.Used,
		FreeBytes:   stat.Free,
		UsedPercent: stat.UsedPercent,
		Threshold:   thresholdPercent,
		Warning:     stat.UsedPercent > thresholdPercent,
	}
	if report.Warning {
		g.logger.Warn("storage utilization above threshold",
			"path", path,
			"used_percent", fmt.Sprintf("%.1f", report.UsedPercent),
			"threshold", fmt.Sprintf("%.1f", thresholdPercent))
	}
	return report, nil
}
