package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
)

// Usage is the host resource sample broadcast to dashboards.
type Usage struct {
	RAMPercent       float64 `json:"ram_percent"`
	CPUPercent       float64 `json:"cpu_percent"`
	DiskPercent      float64 `json:"disk_percent"`
	DiskFreeGB       float64 `json:"disk_free_gb"`
	ActiveRecordings int     `json:"active_recordings"`
}

type Limits struct {
	RAM  float64
	CPU  float64
	Disk float64
}

type EventEmitter interface {
	Emit(event string, payload any)
}

type RecordingCounter interface {
	ActiveCount() int
}

// Monitor samples host RAM, CPU and disk usage on a fixed interval and
// warns the dashboards before the machine starts dropping recordings.
type Monitor struct {
	log       *slog.Logger
	events    EventEmitter
	recorder  RecordingCounter
	path      string
	interval  time.Duration
	limits    Limits
	warnedAt  time.Time
	warnEvery time.Duration
}

func New(log *slog.Logger, events EventEmitter, recorder RecordingCounter, path string, interval time.Duration, limits Limits) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Monitor{
		log:       log,
		events:    events,
		recorder:  recorder,
		path:      path,
		interval:  interval,
		limits:    limits,
		warnEvery: time.Minute,
	}
}

// Run samples until the context is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	const op = "monitor.sample"

	usage := Usage{ActiveRecordings: m.recorder.ActiveCount()}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		usage.RAMPercent = vm.UsedPercent
	} else {
		m.log.Debug("failed to read memory usage", slog.String("op", op), sl.Err(err))
	}

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		usage.CPUPercent = pcts[0]
	}

	if du, err := disk.UsageWithContext(ctx, m.path); err == nil {
		usage.DiskPercent = du.UsedPercent
		usage.DiskFreeGB = float64(du.Free) / (1 << 30)
	}

	m.events.Emit("resource_update", usage)

	warnings := m.check(usage)
	if len(warnings) == 0 {
		return
	}

	// limits stay exceeded for a while; do not spam a warning every tick
	if time.Since(m.warnedAt) < m.warnEvery {
		return
	}
	m.warnedAt = time.Now()

	m.log.Warn("resource limits exceeded",
		slog.String("op", op),
		slog.Any("warnings", warnings),
		slog.Float64("ram", usage.RAMPercent),
		slog.Float64("cpu", usage.CPUPercent),
		slog.Float64("disk", usage.DiskPercent),
	)

	m.events.Emit("resource_warning", map[string]any{
		"warnings": warnings,
		"usage":    usage,
	})
}

func (m *Monitor) check(u Usage) []string {
	var warnings []string

	if m.limits.RAM > 0 && u.RAMPercent >= m.limits.RAM {
		warnings = append(warnings, "ram")
	}
	if m.limits.CPU > 0 && u.CPUPercent >= m.limits.CPU {
		warnings = append(warnings, "cpu")
	}
	if m.limits.Disk > 0 && u.DiskPercent >= m.limits.Disk {
		warnings = append(warnings, "disk")
	}

	return warnings
}
