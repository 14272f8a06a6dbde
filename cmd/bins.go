package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/conneroisu/seqbatch/pkg/seq2seq"
)

// NewBinsCommand returns a new bins command.
func NewBinsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bins",
		Short: "Print how the dataset is split into length bins",
		Long: `
Print how the dataset is split into length bins.

Each row shows the input length range of a bin, how many samples and
batches it holds, the global batch indices it covers and the mean and
standard deviation of the input lengths inside it.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, _, gen, err := loadGenerator()
			if err != nil {
				return err
			}
			lengths := map[int][]float64{}
			for _, s := range samples {
				key := seq2seq.BinKey(len(s.Input), gen.BinWidth())
				lengths[key] = append(lengths[key], float64(len(s.Input)))
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("BIN", "LENGTHS", "SAMPLES", "BATCHES", "INDICES", "MEAN", "STDDEV")
			for _, b := range gen.Bins() {
				mean, std := stat.MeanStdDev(lengths[b.Key], nil)
				if b.Samples < 2 {
					std = 0
				}
				t.Row(
					strconv.Itoa(b.Key),
					fmt.Sprintf("%d-%d", b.MinLength, b.MaxLength),
					strconv.Itoa(b.Samples),
					strconv.Itoa(b.Batches),
					fmt.Sprintf("[%d,%d)", b.Start, b.Cutoff),
					fmt.Sprintf("%.2f", mean),
					fmt.Sprintf("%.2f", std),
				)
			}
			t.Row("total", "", strconv.Itoa(len(samples)), strconv.Itoa(gen.Len()), "", "", "")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	return cmd
}
