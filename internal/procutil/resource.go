package procutil

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostLoad is a snapshot of host-wide resource usage, consulted by the
// executor's optional resource gate.
type HostLoad struct {
	CPUPercent float64
	MemPercent float64
}

// SampleLoad takes a brief (~200ms) CPU sample and an instantaneous memory
// reading. The short CPU window trades precision for keeping the gate from
// adding noticeable latency ahead of every dequeue.
func SampleLoad(ctx context.Context) (HostLoad, error) {
	percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return HostLoad{}, err
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostLoad{}, err
	}

	return HostLoad{CPUPercent: cpuPct, MemPercent: vm.UsedPercent}, nil
}
