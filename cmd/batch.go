package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/seqbatch/pkg/seq2seq"
)

// NewBatchCommand returns a new cobra.Command that encodes a single batch.
func NewBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Encode one batch and print it",
		Long: `
Encode one batch and print it.

Prints the tensor shapes of the batch at --index and decodes every row of
the encoder input and decoder target back to text.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, enc, gen, err := loadGenerator()
			if err != nil {
				return err
			}
			batch, err := gen.Batch(RootArgs.index)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			in, dec := batch.Inputs()
			fmt.Fprintf(out, "batch %d of %d: %d samples\n", RootArgs.index, gen.Len(), batch.Size())
			fmt.Fprintf(out, "encoder input  %v\n", in.Dims)
			fmt.Fprintf(out, "decoder input  %v\n", dec.Dims)
			fmt.Fprintf(out, "decoder output %v\n", batch.Targets().Dims)
			for i := 0; i < batch.Size(); i++ {
				src, err := decodeRow(in, i, enc.Inputs)
				if err != nil {
					return err
				}
				dst, err := decodeRow(batch.Targets(), i, enc.Targets)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%4d  %s\t%s\n", i, src, dst)
			}
			return nil
		},
	}

	cmd.Flags().
		IntVarP(&RootArgs.index, "index", "i", 0, "Global batch index")
	return cmd
}

// decodeRow decodes sample i of a (B, T, V) tensor back to text.
func decodeRow(t seq2seq.Tensor, i int, vocab *seq2seq.Vocabulary) (string, error) {
	if t.Dims[1] == 0 {
		return "", nil
	}
	tokens, err := seq2seq.DecodeSequence(t.Matrix(i), vocab)
	if err != nil {
		return "", fmt.Errorf("decoding sample %d: %w", i, err)
	}
	return seq2seq.JoinTokens(tokens), nil
}
