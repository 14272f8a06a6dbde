package seq2seq

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/mat"

	"github.com/conneroisu/seqbatch/pkg/data"
)

// Translator produces an output sequence for one encoded input.
type Translator interface {
	Translate(encoderInput *mat.Dense) ([]string, error)
}

// Prediction is the result of translating one sample.
type Prediction struct {
	Sample data.Sample
	Output []string
	// Match reports whether Output equals Sample.Output.
	Match bool
}

// CheckPredictions encodes every sample on its own, translates it and logs
// the input, the expected output and the model output.
func CheckPredictions(samples []data.Sample, encode BatchEncoder, translator Translator, logger *log.Logger) ([]Prediction, error) {
	if logger == nil {
		logger = log.Default()
	}
	predictions := make([]Prediction, 0, len(samples))
	for i, sample := range samples {
		batch, err := encode([]data.Sample{sample})
		if err != nil {
			return predictions, fmt.Errorf("encoding sample %d: %w", i, err)
		}
		if batch.EncoderInput.Len() != 1 || batch.EncoderInput.Dims[1] == 0 {
			return predictions, fmt.Errorf("%w: sample %d has no encodable input", ErrInvalidArgument, i)
		}
		out, err := translator.Translate(batch.EncoderInput.Matrix(0))
		if err != nil {
			return predictions, fmt.Errorf("translating sample %d: %w", i, err)
		}
		p := Prediction{
			Sample: sample,
			Output: out,
			Match:  slices.Equal(out, sample.Output),
		}
		logger.Info("prediction",
			"input", JoinTokens(sample.Input),
			"expected", JoinTokens(sample.Output),
			"output", JoinTokens(out),
			"match", p.Match,
		)
		predictions = append(predictions, p)
	}
	return predictions, nil
}

// JoinTokens joins character tokens directly and word tokens with spaces.
func JoinTokens(tokens []string) string {
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) > 1 {
			return strings.Join(tokens, " ")
		}
	}
	return strings.Join(tokens, "")
}
