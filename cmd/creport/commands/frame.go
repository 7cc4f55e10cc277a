package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const timeFlag = "time"

type neuronFrame struct {
	GID      uint32      `yaml:"gid"`
	Sections [][]float32 `yaml:"sections,flow"`
}

type frameDump struct {
	Time    float64       `yaml:"time"`
	Neurons []neuronFrame `yaml:"neurons"`
}

func newFrameCommand(a *app) *cobra.Command {
	var (
		gids, kind, output string
		timestamp          float64
	)

	cmd := &cobra.Command{
		Use:   "frame <source>",
		Short: "Print the frame nearest to a timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			dump, err := a.frame(args[0], gids, kind, timestamp)
			if err != nil {
				return err
			}

			return writeFrame(cmd.OutOrStdout(), dump, output)
		},
	}

	cmd.Flags().Float64VarP(&timestamp, timeFlag, "t", 0, "timestamp of the frame")
	cmd.Flags().StringVar(&gids, gidsFlag, "", "comma-separated GIDs to map (default all)")
	cmd.Flags().StringVar(&kind, typeFlag, "", "force a backend instead of detecting it")
	cmd.Flags().StringVarP(&output, outputFlag, "o", outputTable, "output format: table or yaml")

	return cmd
}

func (a *app) frame(source, gids, kind string, timestamp float64) (*frameDump, error) {
	r, err := a.openRead(source, gids, kind)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	values, err := r.LoadFrame(timestamp)
	if err != nil {
		return nil, fmt.Errorf("load frame at %g: %w", timestamp, err)
	}
	m, err := r.Mapping()
	if err != nil {
		return nil, err
	}

	dump := &frameDump{Time: timestamp, Neurons: make([]neuronFrame, 0, m.Len())}
	counts := m.Counts()
	for i, gid := range m.GIDs() {
		nf := neuronFrame{GID: gid, Sections: make([][]float32, len(counts[i]))}
		off := m.Base(i)
		for s, n := range counts[i] {
			nf.Sections[s] = values[off : off+uint64(n)]
			off += uint64(n)
		}
		dump.Neurons = append(dump.Neurons, nf)
	}

	return dump, nil
}

func writeFrame(w io.Writer, dump *frameDump, output string) error {
	if output == outputYAML {
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(dump); err != nil {
			return err
		}

		return enc.Close()
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle("t = %g", dump.Time)
	tbl.AppendHeader(table.Row{"GID", "Section", "Values"})
	for _, nf := range dump.Neurons {
		for s, values := range nf.Sections {
			tbl.AppendRow(table.Row{nf.GID, s, formatValues(values)})
		}
	}
	tbl.Render()

	return nil
}

func formatValues(values []float32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}

	return strings.Join(parts, " ")
}
