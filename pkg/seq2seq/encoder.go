package seq2seq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/conneroisu/seqbatch/pkg/data"
)

// OneHotEncoder one-hot encodes samples and zero pads them to the longest
// sequence in the batch.
type OneHotEncoder struct {
	// Inputs is the encoder side vocabulary.
	Inputs *Vocabulary
	// Targets is the decoder side vocabulary.
	Targets *Vocabulary
}

// NewOneHotEncoder returns an encoder over vocabularies built from samples.
func NewOneHotEncoder(samples []data.Sample) *OneHotEncoder {
	in, out := BuildVocabularies(samples)
	return &OneHotEncoder{Inputs: in, Targets: out}
}

// Encode builds the encoder input, decoder input and decoder output tensors.
//
// The decoder input is the output sequence prefixed with StartToken. The
// decoder output is the output sequence followed by StopToken, one step ahead
// of the decoder input.
func (e *OneHotEncoder) Encode(samples []data.Sample) (Batch, error) {
	if e.Inputs == nil || e.Targets == nil {
		return Batch{}, fmt.Errorf("%w: encoder vocabularies are required", ErrInvalidArgument)
	}
	maxIn, maxOut := 0, 0
	for _, s := range samples {
		maxIn = max(maxIn, len(s.Input))
		maxOut = max(maxOut, len(s.Output))
	}
	B := len(samples)
	batch := Batch{
		EncoderInput:  NewTensor(B, maxIn, e.Inputs.Size()),
		DecoderInput:  NewTensor(B, maxOut+1, e.Targets.Size()),
		DecoderOutput: NewTensor(B, maxOut+1, e.Targets.Size()),
	}
	start, err := e.Targets.ID(StartToken)
	if err != nil {
		return Batch{}, err
	}
	stop, err := e.Targets.ID(StopToken)
	if err != nil {
		return Batch{}, err
	}
	for b, s := range samples {
		in, err := e.Inputs.Encode(s.Input)
		if err != nil {
			return Batch{}, fmt.Errorf("sample %d input: %w", b, err)
		}
		out, err := e.Targets.Encode(s.Output)
		if err != nil {
			return Batch{}, fmt.Errorf("sample %d output: %w", b, err)
		}
		for t, id := range in {
			batch.EncoderInput.Set(1, b, t, id)
		}
		batch.DecoderInput.Set(1, b, 0, start)
		for t, id := range out {
			batch.DecoderInput.Set(1, b, t+1, id)
			batch.DecoderOutput.Set(1, b, t, id)
		}
		batch.DecoderOutput.Set(1, b, len(out), stop)
	}
	return batch, nil
}

// DecodeSequence maps a (T, V) one-hot or probability matrix back to tokens.
// Decoding stops at StopToken or at the first all-zero padding row. The start
// token is skipped.
func DecodeSequence(m mat.Matrix, vocab *Vocabulary) ([]string, error) {
	if _, cols := m.Dims(); cols != vocab.Size() {
		return nil, fmt.Errorf("%w: matrix has %d columns, vocabulary has %d entries", ErrInvalidArgument, cols, vocab.Size())
	}
	var ids []int
	for _, id := range argmaxRows(m) {
		if id < 0 {
			break
		}
		tok, err := vocab.Decode([]int{id})
		if err != nil {
			return nil, err
		}
		if tok[0] == StopToken {
			break
		}
		if tok[0] == StartToken || tok[0] == PadToken {
			continue
		}
		ids = append(ids, id)
	}
	return vocab.Decode(ids)
}
