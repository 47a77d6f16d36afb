// Package builtin registers the tools every agent gets out of the box:
// echo, time.now, and a gopsutil-backed host snapshot.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/floegence/taskrun-agent/internal/tools"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Register adds all builtin tools to the registry.
func Register(reg *tools.Registry) error {
	if reg == nil {
		return errors.New("nil registry")
	}
	for _, t := range []tools.Tool{
		{
			Name:        "echo",
			Description: "Return the given text unchanged. Arguments: {text: string}.",
			Handler:     echoHandler,
		},
		{
			Name:        "time.now",
			Description: "Return the current time in UTC (RFC 3339). No arguments.",
			Handler:     timeNowHandler,
		},
		{
			Name:        "sys.info",
			Description: "Return a snapshot of the host: CPU usage, memory, load, uptime. No arguments.",
			Handler:     sysInfoHandler,
		},
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func echoHandler(_ context.Context, args map[string]any) (any, error) {
	text, ok := args["text"].(string)
	if !ok {
		return nil, errors.New("echo requires a string 'text' argument")
	}
	return text, nil
}

func timeNowHandler(_ context.Context, _ map[string]any) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func sysInfoHandler(ctx context.Context, _ map[string]any) (any, error) {
	out := map[string]any{
		"platform": fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		out["cpu_usage_percent"] = percents[0]
	}
	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		out["cpu_cores"] = counts
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		out["mem_total_bytes"] = vm.Total
		out["mem_available_bytes"] = vm.Available
		out["mem_used_percent"] = vm.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		out["load_average"] = []float64{avg.Load1, avg.Load5, avg.Load15}
	}
	if info, err := host.InfoWithContext(ctx); err == nil && info != nil {
		out["hostname"] = info.Hostname
		out["os"] = info.OS
		out["uptime_seconds"] = info.Uptime
	}
	return out, nil
}
