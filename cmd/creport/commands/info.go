package commands

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/creport/endian"
	"github.com/arloliu/creport/report"
)

type reportInfo struct {
	Source     string  `yaml:"source"`
	Backend    string  `yaml:"backend"`
	StartTime  float64 `yaml:"start_time"`
	EndTime    float64 `yaml:"end_time"`
	Timestep   float64 `yaml:"timestep"`
	DataUnit   string  `yaml:"data_unit"`
	TimeUnit   string  `yaml:"time_unit"`
	Frames     int     `yaml:"frames"`
	Neurons    int     `yaml:"neurons"`
	FrameSize  uint64  `yaml:"frame_size"`
	FrameBytes string  `yaml:"frame_bytes"`
	DiskUsage  string  `yaml:"disk_usage,omitempty"`
}

func newInfoCommand(a *app) *cobra.Command {
	var gids, kind, output string

	cmd := &cobra.Command{
		Use:   "info <source>",
		Short: "Show the header and layout of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			info, err := a.info(args[0], gids, kind)
			if err != nil {
				return err
			}

			return writeInfo(cmd.OutOrStdout(), info, output)
		},
	}

	cmd.Flags().StringVar(&gids, gidsFlag, "", "comma-separated GIDs to map (default all)")
	cmd.Flags().StringVar(&kind, typeFlag, "", "force a backend instead of detecting it")
	cmd.Flags().StringVarP(&output, outputFlag, "o", outputTable, "output format: table or yaml")

	return cmd
}

func (a *app) info(source, gids, kind string) (*reportInfo, error) {
	r, err := a.openRead(source, gids, kind)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	h, err := r.Header()
	if err != nil {
		return nil, err
	}
	m, err := r.Mapping()
	if err != nil {
		return nil, err
	}

	info := &reportInfo{
		Source:     source,
		Backend:    r.BackendName(),
		StartTime:  h.StartTime,
		EndTime:    h.EndTime,
		Timestep:   h.Timestep,
		DataUnit:   h.DataUnit,
		TimeUnit:   h.TimeUnit,
		Frames:     h.FrameCount(),
		Neurons:    m.Len(),
		FrameSize:  m.FrameSize(),
		FrameBytes: humanize.IBytes(m.FrameSize() * endian.Float32Size),
	}
	if size, ok := diskUsage(report.ParseSource(source).Path); ok {
		info.DiskUsage = humanize.IBytes(size)
	}

	return info, nil
}

func writeInfo(w io.Writer, info *reportInfo, output string) error {
	if output == outputYAML {
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(info); err != nil {
			return err
		}

		return enc.Close()
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Field", "Value"})
	tbl.AppendRows([]table.Row{
		{"Source", info.Source},
		{"Backend", info.Backend},
		{"Time", fmt.Sprintf("[%g, %g) %s", info.StartTime, info.EndTime, info.TimeUnit)},
		{"Timestep", fmt.Sprintf("%g %s", info.Timestep, info.TimeUnit)},
		{"Data unit", info.DataUnit},
		{"Frames", humanize.Comma(int64(info.Frames))},
		{"Neurons", humanize.Comma(int64(info.Neurons))},
		{"Frame size", fmt.Sprintf("%s values (%s)", humanize.Comma(int64(info.FrameSize)), info.FrameBytes)}, //nolint: gosec
	})
	if info.DiskUsage != "" {
		tbl.AppendRow(table.Row{"Disk usage", info.DiskUsage})
	}
	tbl.Render()

	return nil
}

// diskUsage sums the sizes of the regular files at or below path.
func diskUsage(path string) (uint64, bool) {
	if path == "" {
		return 0, false
	}
	if _, err := os.Stat(path); err != nil {
		return 0, false
	}

	var total uint64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(fi.Size()) //nolint: gosec

		return nil
	})

	return total, err == nil
}
