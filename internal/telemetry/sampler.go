package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultWindow is how many samples a Window keeps.
const DefaultWindow = 60

// Sample is one host reading. Load is the mean of CPU and memory usage.
type Sample struct {
	At          time.Time `json:"at" yaml:"at"`
	CPUPercent  float64   `json:"cpu_percent" yaml:"cpu_percent"`
	MemPercent  float64   `json:"mem_percent" yaml:"mem_percent"`
	DiskPercent float64   `json:"disk_percent" yaml:"disk_percent"`
	Processes   int       `json:"processes" yaml:"processes"`
	Load        float64   `json:"load" yaml:"load"`
	NetUpBps    float64   `json:"net_up_bps" yaml:"net_up_bps"`
	NetDownBps  float64   `json:"net_down_bps" yaml:"net_down_bps"`
}

// Sampler polls a Reader on a fixed interval.
type Sampler struct {
	r        Reader
	interval time.Duration
	diskPath string
	log      *slog.Logger
	now      func() time.Time

	lastAt             time.Time
	lastSent, lastRecv uint64
}

type Option func(*Sampler)

func WithReader(r Reader) Option { return func(s *Sampler) { s.r = r } }

func WithLogger(l *slog.Logger) Option { return func(s *Sampler) { s.log = l } }

// WithDiskPath selects the filesystem whose usage is reported.
func WithDiskPath(p string) Option { return func(s *Sampler) { s.diskPath = p } }

func withClock(f func() time.Time) Option { return func(s *Sampler) { s.now = f } }

func NewSampler(interval time.Duration, opts ...Option) *Sampler {
	s := &Sampler{
		r:        HostReader{},
		interval: interval,
		diskPath: "/",
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.interval <= 0 {
		s.interval = time.Second
	}
	return s
}

// Sample takes one reading. Counters that fail are left zero and their errors
// are joined into the returned error; the sample is still usable.
// Sample is not safe for concurrent use.
func (s *Sampler) Sample(ctx context.Context) (Sample, error) {
	var errs []error
	out := Sample{At: s.now()}
	var err error
	if out.CPUPercent, err = s.r.CPUPercent(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	}
	if out.MemPercent, err = s.r.MemPercent(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}
	if out.DiskPercent, err = s.r.DiskPercent(ctx, s.diskPath); err != nil {
		errs = append(errs, fmt.Errorf("disk %s: %w", s.diskPath, err))
	}
	if out.Processes, err = s.r.ProcessCount(ctx); err != nil {
		errs = append(errs, fmt.Errorf("processes: %w", err))
	}
	out.Load = (out.CPUPercent + out.MemPercent) / 2

	sent, recv, err := s.r.NetBytes(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("network: %w", err))
	} else {
		if !s.lastAt.IsZero() {
			if dt := out.At.Sub(s.lastAt).Seconds(); dt > 0 {
				out.NetUpBps = rate(sent, s.lastSent, dt)
				out.NetDownBps = rate(recv, s.lastRecv, dt)
			}
		}
		s.lastAt, s.lastSent, s.lastRecv = out.At, sent, recv
	}
	return out, errors.Join(errs...)
}

// rate tolerates counter resets by reporting zero.
func rate(cur, prev uint64, seconds float64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / seconds
}

// Run samples every interval until ctx is cancelled, then closes the channel.
// A slow consumer misses samples rather than delaying the next reading.
func (s *Sampler) Run(ctx context.Context) <-chan Sample {
	ch := make(chan Sample, 1)
	go func() {
		defer close(ch)
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			smp, err := s.Sample(ctx)
			if err != nil {
				s.log.Debug("telemetry sample incomplete", slog.Any("error", err))
			}
			select {
			case ch <- smp:
			default:
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return ch
}

// Window keeps the most recent samples, oldest first.
type Window struct {
	max     int
	samples []Sample
}

func NewWindow(n int) *Window {
	if n <= 0 {
		n = DefaultWindow
	}
	return &Window{max: n}
}

func (w *Window) Push(s Sample) {
	w.samples = append(w.samples, s)
	if len(w.samples) > w.max {
		w.samples = append(w.samples[:0], w.samples[len(w.samples)-w.max:]...)
	}
}

func (w *Window) Samples() []Sample { return append([]Sample(nil), w.samples...) }

// Averages returns the mean CPU and memory usage over the window.
func (w *Window) Averages() (cpuAvg, memAvg float64) {
	if len(w.samples) == 0 {
		return 0, 0
	}
	for _, s := range w.samples {
		cpuAvg += s.CPUPercent
		memAvg += s.MemPercent
	}
	n := float64(len(w.samples))
	return cpuAvg / n, memAvg / n
}
