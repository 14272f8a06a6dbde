package cmd

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/conneroisu/seqbatch/pkg/seq2seq"
	"github.com/conneroisu/seqbatch/pkg/train"
)

// NewRunCommand returns a new run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Iterate over every batch for a number of epochs",
		Long: `
Iterate over every batch for a number of epochs.

Fetches and encodes every batch with a pool of workers, reshuffles the bins
between epochs and reports how much of the encoder input is padding.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, gen, err := loadGenerator()
			if err != nil {
				return err
			}
			loop := &train.Loop{
				Generator: gen,
				Workers:   RootArgs.workers,
				Shuffle:   RootArgs.shuffle,
				Rand:      rand.New(rand.NewSource(RootArgs.seed + 1)),
			}
			stats, err := loop.Run(cmd.Context(), RootArgs.epochs, func(_ context.Context, epoch, index int, batch seq2seq.Batch) error {
				log.Debug("batch", "epoch", epoch, "index", index, "size", batch.Size(), "dims", batch.EncoderInput.Dims)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to run epochs: %w", err)
			}
			log.Info("done",
				"epochs", stats.Epochs,
				"batches", stats.Batches,
				"samples", stats.Samples,
				"padding", fmt.Sprintf("%.3f", stats.PaddingRatio()),
			)
			return nil
		},
	}

	cmd.Flags().
		IntVarP(&RootArgs.epochs, "epochs", "e", 1, "Number of epochs")
	cmd.Flags().
		IntVarP(&RootArgs.workers, "workers", "j", 4, "Number of goroutines fetching batches")
	cmd.Flags().
		BoolVar(&RootArgs.shuffle, "shuffle", true, "Visit batches in random order")
	return cmd
}
