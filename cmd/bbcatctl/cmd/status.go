package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/guilhermesalviano/bbcat/internal/telemetry"
)

func statusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show relay host status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.requestContext(cmd.Context())
			defer cancel()

			r, err := c.Status(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			renderStatus(cmd, r)
			return nil
		},
	}
}

func renderStatus(cmd *cobra.Command, r telemetry.Report) {
	t := newTable(cmd.OutOrStdout(), "Relay")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Status", statusText(r.Status)},
		{"Hostname", orDash(r.Hostname)},
		{"Platform", r.Platform + " " + r.OSRelease},
		{"Host uptime", (time.Duration(r.Uptime.Server) * time.Second).String()},
		{"Relay uptime", (time.Duration(r.Uptime.API) * time.Second).String()},
	})
	if r.Memory != nil {
		t.AppendRow(table.Row{"Memory", fmt.Sprintf("%s free of %s (%s used)", r.Memory.Free, r.Memory.Total, r.Memory.Usage)})
	}
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"CPU", orDash(r.CPU.Model)},
		{"Cores", strconv.Itoa(r.CPU.Cores)},
	})
	if len(r.CPU.Load) == 3 {
		t.AppendRow(table.Row{"Load", fmt.Sprintf("%.2f %.2f %.2f", r.CPU.Load[0], r.CPU.Load[1], r.CPU.Load[2])})
	}
	if r.CPU.Temperature != "" {
		t.AppendRow(table.Row{"Temperature", r.CPU.Temperature})
	}
	if r.Disk != nil {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Disk", fmt.Sprintf("%s used of %s, %s available (%s)", r.Disk.Used, r.Disk.Total, r.Disk.Available, r.Disk.UsagePercent)})
	}
	t.Render()

	if len(r.Endpoints) == 0 {
		return
	}
	paths := make([]string, 0, len(r.Endpoints))
	for p := range r.Endpoints {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	e := newTable(cmd.OutOrStdout(), "Endpoints")
	e.AppendHeader(table.Row{"Path", "Description"})
	for _, p := range paths {
		e.AppendRow(table.Row{p, r.Endpoints[p]})
	}
	e.Render()
}

func orDash(s string) string {
	if s == "" {
		return mutedStyle.Render("-")
	}
	return s
}
