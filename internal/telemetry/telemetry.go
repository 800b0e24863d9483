// Package telemetry reports host health for the relay's root route.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

type Uptime struct {
	// Server is the host uptime in seconds.
	Server uint64 `json:"server"`
	// API is the relay process uptime in seconds.
	API int64 `json:"api"`
}

type Memory struct {
	Total string `json:"total"`
	Free  string `json:"free"`
	Usage string `json:"usage"`
}

type CPU struct {
	Model       string    `json:"model,omitempty"`
	Cores       int       `json:"cores,omitempty"`
	Load        []float64 `json:"load,omitempty"` // 1, 5 and 15 minute averages
	Temperature string    `json:"temperature,omitempty"`
}

type Disk struct {
	Total        string `json:"total"`
	Used         string `json:"used"`
	Available    string `json:"available"`
	UsagePercent string `json:"usagePercent"`
}

// Report is the body of GET /. Fields whose probe failed are omitted.
type Report struct {
	Status    string            `json:"status"`
	Uptime    Uptime            `json:"uptime"`
	Memory    *Memory           `json:"memory,omitempty"`
	CPU       CPU               `json:"cpu"`
	Hostname  string            `json:"hostname,omitempty"`
	Platform  string            `json:"platform"`
	OSRelease string            `json:"osRelease,omitempty"`
	Disk      *Disk             `json:"disk,omitempty"`
	Endpoints map[string]string `json:"endpoints"`
}

// Endpoints advertised in every report.
var Endpoints = map[string]string{
	"/stream":          "MJPEG stream relayed from the camera",
	"/api/stream-info": "information about the upstream stream",
	"/api/snapshot":    "a single frame captured from the stream",
}

type Collector interface {
	Collect(ctx context.Context) Report
}

// HostCollector gathers a Report with gopsutil. Each probe is independent; a
// failing probe is logged at debug level and its fields are left out.
type HostCollector struct {
	log             *slog.Logger
	started         time.Time
	thermalZonePath string
	diskPath        string

	now         func() time.Time
	memory      func(context.Context) (*mem.VirtualMemoryStat, error)
	cpuInfo     func(context.Context) ([]cpu.InfoStat, error)
	cpuCounts   func(context.Context, bool) (int, error)
	loadAvg     func(context.Context) (*load.AvgStat, error)
	hostInfo    func(context.Context) (*host.InfoStat, error)
	diskUsage   func(context.Context, string) (*disk.UsageStat, error)
	readThermal func(string) ([]byte, error)
}

func NewHostCollector(logger *slog.Logger, thermalZonePath string) *HostCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostCollector{
		log:             logger,
		started:         time.Now(),
		thermalZonePath: thermalZonePath,
		diskPath:        "/",

		now:         time.Now,
		memory:      mem.VirtualMemoryWithContext,
		cpuInfo:     cpu.InfoWithContext,
		cpuCounts:   cpu.CountsWithContext,
		loadAvg:     load.AvgWithContext,
		hostInfo:    host.InfoWithContext,
		diskUsage:   disk.UsageWithContext,
		readThermal: os.ReadFile,
	}
}

func (c *HostCollector) Collect(ctx context.Context) Report {
	r := Report{
		Status:    "online",
		Platform:  runtime.GOOS,
		Endpoints: Endpoints,
	}
	r.Uptime.API = int64(c.now().Sub(c.started) / time.Second)

	if h, err := c.hostInfo(ctx); err != nil {
		c.log.Debug("telemetry host info failed", "err", err)
	} else {
		r.Uptime.Server = h.Uptime
		r.Hostname = h.Hostname
		r.OSRelease = h.KernelVersion
	}

	if vm, err := c.memory(ctx); err != nil {
		c.log.Debug("telemetry memory failed", "err", err)
	} else if vm.Total > 0 {
		r.Memory = &Memory{
			Total: megabytes(vm.Total),
			Free:  megabytes(vm.Available),
			Usage: strconv.Itoa(int(math.Round((1-float64(vm.Available)/float64(vm.Total))*100))) + "%",
		}
	}

	if infos, err := c.cpuInfo(ctx); err != nil {
		c.log.Debug("telemetry cpu info failed", "err", err)
	} else if len(infos) > 0 {
		r.CPU.Model = infos[0].ModelName
	}
	if n, err := c.cpuCounts(ctx, true); err != nil {
		c.log.Debug("telemetry cpu count failed", "err", err)
	} else {
		r.CPU.Cores = n
	}
	if avg, err := c.loadAvg(ctx); err != nil {
		c.log.Debug("telemetry load average failed", "err", err)
	} else {
		r.CPU.Load = []float64{avg.Load1, avg.Load5, avg.Load15}
	}
	if c.thermalZonePath != "" {
		if t, err := c.temperature(); err != nil {
			c.log.Debug("telemetry temperature failed", "path", c.thermalZonePath, "err", err)
		} else {
			r.CPU.Temperature = t
		}
	}

	if u, err := c.diskUsage(ctx, c.diskPath); err != nil {
		c.log.Debug("telemetry disk usage failed", "path", c.diskPath, "err", err)
	} else {
		r.Disk = &Disk{
			Total:        humanBytes(u.Total),
			Used:         humanBytes(u.Used),
			Available:    humanBytes(u.Free),
			UsagePercent: strconv.Itoa(int(math.Ceil(u.UsedPercent))) + "%",
		}
	}

	return r
}

// temperature reads a sysfs thermal zone (millidegrees Celsius).
func (c *HostCollector) temperature() (string, error) {
	raw, err := c.readThermal(c.thermalZonePath)
	if err != nil {
		return "", err
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse thermal zone: %w", err)
	}
	return strconv.Itoa(int(math.Round(float64(milli)/1000))) + " °C", nil
}

func megabytes(b uint64) string {
	return strconv.Itoa(int(math.Round(float64(b)/(1024*1024)))) + " MB"
}

// humanBytes formats like df -h: powers of 1024, one decimal below 10.
func humanBytes(b uint64) string {
	const units = "KMGTPE"
	if b < 1024 {
		return strconv.FormatUint(b, 10)
	}
	v := float64(b)
	i := -1
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	if v < 10 {
		return strconv.FormatFloat(math.Ceil(v*10)/10, 'f', 1, 64) + string(units[i])
	}
	return strconv.Itoa(int(math.Ceil(v))) + string(units[i])
}
