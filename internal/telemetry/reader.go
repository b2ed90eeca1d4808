package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// Reader reads raw host counters. HostReader is the gopsutil implementation.
type Reader interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemPercent(ctx context.Context) (float64, error)
	DiskPercent(ctx context.Context, path string) (float64, error)
	ProcessCount(ctx context.Context) (int, error)
	// NetBytes returns total bytes sent and received across all interfaces.
	NetBytes(ctx context.Context) (sent, recv uint64, err error)
}

type HostReader struct{}

func (HostReader) CPUPercent(ctx context.Context) (float64, error) {
	// interval 0 compares against the previous call
	v, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, errors.New("no cpu data")
	}
	return v[0], nil
}

func (HostReader) MemPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (HostReader) DiskPercent(ctx context.Context, path string) (float64, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return u.UsedPercent, nil
}

func (HostReader) ProcessCount(ctx context.Context) (int, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return len(pids), nil
}

func (HostReader) NetBytes(ctx context.Context) (uint64, uint64, error) {
	cs, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, 0, err
	}
	if len(cs) == 0 {
		return 0, 0, errors.New("no network counters")
	}
	return cs[0].BytesSent, cs[0].BytesRecv, nil
}

// ProcessInfo is one row of the host process table.
type ProcessInfo struct {
	PID      int32   `json:"pid" yaml:"pid"`
	Name     string  `json:"name" yaml:"name"`
	MemoryMB float64 `json:"memory_mb" yaml:"memory_mb"`
}

// TopProcesses lists the n host processes with the largest resident memory.
// Processes that vanish or deny access while being inspected are skipped.
func TopProcesses(ctx context.Context, n int) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		mi, err := p.MemoryInfoWithContext(ctx)
		if err != nil || mi == nil {
			continue
		}
		name, _ := p.NameWithContext(ctx)
		out = append(out, ProcessInfo{PID: p.Pid, Name: name, MemoryMB: float64(mi.RSS) / (1024 * 1024)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemoryMB > out[j].MemoryMB })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Kill forcefully terminates an arbitrary host process by pid.
func Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}
	return p.KillWithContext(ctx)
}
