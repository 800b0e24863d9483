package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func streamInfoCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stream-info",
		Short: "Probe the upstream MJPEG stream through the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.requestContext(cmd.Context())
			defer cancel()

			info, err := c.StreamInfo(ctx)
			if err != nil {
				return fmt.Errorf("stream-info: %w", err)
			}

			t := newTable(cmd.OutOrStdout(), "Stream")
			t.AppendRows([]table.Row{
				{"URL", info.URL},
				{"Status", statusText(info.Status)},
				{"Content-Type", orDash(info.ContentType)},
			})
			if len(info.Headers) > 0 {
				t.AppendSeparator()
				names := make([]string, 0, len(info.Headers))
				for k := range info.Headers {
					names = append(names, k)
				}
				sort.Strings(names)
				for _, k := range names {
					t.AppendRow(table.Row{mutedStyle.Render(k), info.Headers[k]})
				}
			}
			t.Render()
			return nil
		},
	}
}

func snapshotCommand(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save one JPEG frame from the stream",
		Long: `Save one JPEG frame from the stream.

Examples:
  bbcatctl snapshot
  bbcatctl snapshot -o - > frame.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.requestContext(cmd.Context())
			defer cancel()

			var w io.Writer = cmd.OutOrStdout()
			var f *os.File
			if output != "-" {
				f, err = os.CreateTemp(filepath.Dir(output), ".snapshot-*")
				if err != nil {
					return err
				}
				defer os.Remove(f.Name())
				defer f.Close()
				w = f
			}

			n, err := c.Snapshot(ctx, w)
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
			if f == nil {
				return nil
			}
			if err := f.Close(); err != nil {
				return err
			}
			if err := os.Rename(f.Name(), output); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓")+fmt.Sprintf(" saved %d bytes to %s", n, output))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "snapshot.jpg", `output file, or "-" for stdout`)
	return cmd
}
