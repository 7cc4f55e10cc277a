package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arloliu/creport"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/report"
)

const compressionFlag = "compression"

func newConvertCommand(a *app) *cobra.Command {
	var gids, kind, compression string

	cmd := &cobra.Command{
		Use:   "convert <source> <destination>",
		Short: "Copy a report into another encoding",
		Long: `Copy the header, the compartment counts and every frame of a report into a
new report. The destination encoding is detected from its name; an existing
destination is overwritten.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.openRead(args[0], gids, kind)
			if err != nil {
				return err
			}
			defer in.Close()

			var extra []report.Option
			if compression != "" {
				c, err := format.ParseCompression(compression)
				if err != nil {
					return fmt.Errorf("--%s: %w", compressionFlag, err)
				}
				extra = append(extra, report.WithCompression(c))
			}

			out, err := a.open(report.InitData{Source: args[1], Mode: format.ModeOverwrite}, extra...)
			if err != nil {
				return err
			}

			if err := creport.Convert(cmd.Context(), in, out); err != nil {
				_ = out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}

			m, err := in.Mapping()
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("converted %s neurons, %s frames to %s", humanize.Comma(int64(m.Len())), humanize.Comma(int64(in.FrameCount())), out.BackendName())
			if size, ok := diskUsage(report.ParseSource(args[1]).Path); ok {
				summary += " (" + humanize.IBytes(size) + ")"
			}
			a.logger.Info("report converted", "source", args[0], "destination", args[1], "backend", out.BackendName())
			_, err = fmt.Fprintln(cmd.OutOrStdout(), summary)

			return err
		},
	}

	cmd.Flags().StringVar(&gids, gidsFlag, "", "comma-separated GIDs to copy (default all)")
	cmd.Flags().StringVar(&kind, typeFlag, "", "force the source backend instead of detecting it")
	cmd.Flags().StringVar(&compression, compressionFlag, "", "override storage.compression for the destination")

	return cmd
}
