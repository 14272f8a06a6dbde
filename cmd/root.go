// Package cmd contains the root command for the seqbatch CLI.
package cmd

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/conneroisu/seqbatch/pkg/data"
	"github.com/conneroisu/seqbatch/pkg/seq2seq"
)

// rootArgs is the root command arguments.
type rootArgs struct {
	verbose     bool
	datasetPath string
	tokenizer   string
	reverse     bool
	maxSamples  int
	batchSize   int
	binWidth    int
	seed        int64
	index       int
	epochs      int
	workers     int
	shuffle     bool
}

// RootArgs is the root command arguments.
var RootArgs rootArgs

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "seqbatch",
	Short: "Length-binned batching for seq2seq training data",
	Long: `
Length-binned batching for seq2seq training data.

Groups sentence pairs of similar input length into batches so each batch
needs little padding, then reports, encodes or iterates over those batches.
	`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if RootArgs.verbose {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&RootArgs.verbose, "verbose", "v", false, "Verbose output")
	flags.StringVarP(&RootArgs.datasetPath, "dataset-path", "d", "pairs.txt", "Path to the tab separated sentence pairs")
	flags.StringVarP(&RootArgs.tokenizer, "tokenizer", "t", "char", "Tokenizer: char or word")
	flags.BoolVarP(&RootArgs.reverse, "reverse", "r", false, "Swap input and output columns")
	flags.IntVarP(&RootArgs.maxSamples, "max-samples", "n", 0, "Maximum number of pairs to read (0 reads all)")
	flags.IntVarP(&RootArgs.batchSize, "batch-size", "b", 64, "Batch size")
	flags.IntVarP(&RootArgs.binWidth, "bin-width", "w", seq2seq.DefaultBinWidth, "Input length range covered by one bin")
	flags.Int64VarP(&RootArgs.seed, "seed", "s", rand.Int63(), "Seed for the shuffle random number generator")

	rootCmd.AddCommand(NewBinsCommand())
	rootCmd.AddCommand(NewBatchCommand())
	rootCmd.AddCommand(NewRunCommand())
}

// loadGenerator reads the dataset and bins it with the root arguments.
func loadGenerator() ([]data.Sample, *seq2seq.OneHotEncoder, *seq2seq.BinnedGenerator, error) {
	tok, err := seq2seq.NewTokenizer(RootArgs.tokenizer)
	if err != nil {
		return nil, nil, nil, err
	}
	loader := data.NewPairLoader(RootArgs.datasetPath, tok)
	loader.Reverse = RootArgs.reverse
	loader.MaxSamples = RootArgs.maxSamples
	samples, err := loader.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load samples: %w", err)
	}
	log.Debug("loaded samples", "path", RootArgs.datasetPath, "count", len(samples))

	enc := seq2seq.NewOneHotEncoder(samples)
	gen, err := seq2seq.NewBinnedGenerator(
		samples,
		RootArgs.batchSize,
		enc.Encode,
		seq2seq.WithBinWidth(RootArgs.binWidth),
		seq2seq.WithRand(rand.New(rand.NewSource(RootArgs.seed))),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to bin samples: %w", err)
	}
	return samples, enc, gen, nil
}
