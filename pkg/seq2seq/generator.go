package seq2seq

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/conneroisu/seqbatch/pkg/data"
)

// DefaultBinWidth is the bin width used when none is given.
const DefaultBinWidth = 5

var (
	// ErrInvalidArgument is returned for degenerate generator settings.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIndexOutOfRange is returned for a batch index outside [0, Len()).
	ErrIndexOutOfRange = errors.New("batch index out of range")
)

// Batch is one encoded group of samples.
type Batch struct {
	// EncoderInput is the (B, T, V) encoder input.
	EncoderInput Tensor
	// DecoderInput is the (B, T, V) teacher-forced decoder input.
	DecoderInput Tensor
	// DecoderOutput is the (B, T, V) decoder target.
	DecoderOutput Tensor
}

// Inputs returns the encoder and decoder inputs.
func (b Batch) Inputs() (Tensor, Tensor) {
	return b.EncoderInput, b.DecoderInput
}

// Targets returns the decoder target.
func (b Batch) Targets() Tensor {
	return b.DecoderOutput
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int {
	return b.EncoderInput.Len()
}

// BatchEncoder turns a list of samples into aligned encoder input, decoder
// input and decoder output tensors.
type BatchEncoder func(samples []data.Sample) (Batch, error)

// Generator is an indexable series of batches covering one epoch.
type Generator interface {
	// Len returns the number of batches in an epoch.
	Len() int
	// Batch returns the batch at index.
	Batch(index int) (Batch, error)
	// OnEpochEnd is called once after every completed epoch.
	OnEpochEnd()
}

// bin is a group of samples whose input lengths fall in the same range.
type bin struct {
	key     int
	samples []data.Sample
	start   int // first global batch index
	cutoff  int // one past the last global batch index
}

// BinInfo describes one bin of a BinnedGenerator.
type BinInfo struct {
	// Key is (inputLength-1) / binWidth, rounded down.
	Key int
	// MinLength and MaxLength bound the input lengths the bin accepts.
	MinLength, MaxLength int
	// Samples is the number of samples in the bin.
	Samples int
	// Batches is the number of batches the bin contributes.
	Batches int
	// Start is the first global batch index of the bin.
	Start int
	// Cutoff is one past the last global batch index of the bin.
	Cutoff int
}

// BinnedGenerator groups samples of similar input length so each batch
// needs little padding.
//
// Bins are fixed at construction. Batch may be called concurrently and in any
// order. OnEpochEnd reshuffles samples within each bin.
type BinnedGenerator struct {
	batchSize int
	binWidth  int
	encode    BatchEncoder
	bins      []bin
	length    int
	rng       *rand.Rand
	logger    *log.Logger
	mu        sync.RWMutex
}

// Option configures a BinnedGenerator.
type Option func(*BinnedGenerator)

// WithBinWidth sets the input-length range covered by one bin.
func WithBinWidth(width int) Option {
	return func(g *BinnedGenerator) { g.binWidth = width }
}

// WithRand sets the source used to shuffle bins.
func WithRand(rng *rand.Rand) Option {
	return func(g *BinnedGenerator) { g.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *BinnedGenerator) { g.logger = logger }
}

// NewBinnedGenerator bins samples by input length and lays the bins out over
// a contiguous range of batch indices in ascending key order.
func NewBinnedGenerator(samples []data.Sample, batchSize int, encode BatchEncoder, opts ...Option) (*BinnedGenerator, error) {
	g := &BinnedGenerator{
		batchSize: batchSize,
		binWidth:  DefaultBinWidth,
		encode:    encode,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidArgument, g.batchSize)
	}
	if g.binWidth <= 0 {
		return nil, fmt.Errorf("%w: bin width must be positive, got %d", ErrInvalidArgument, g.binWidth)
	}
	if g.encode == nil {
		return nil, fmt.Errorf("%w: batch encoder is required", ErrInvalidArgument)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if g.logger == nil {
		g.logger = log.Default()
	}

	byKey := map[int][]data.Sample{}
	for _, s := range samples {
		key := BinKey(len(s.Input), g.binWidth)
		byKey[key] = append(byKey[key], s)
	}
	keys := make([]int, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Ints(keys)

	offset := 0
	g.bins = make([]bin, 0, len(keys))
	for _, key := range keys {
		members := byKey[key]
		batches := (len(members) + g.batchSize - 1) / g.batchSize
		g.bins = append(g.bins, bin{
			key:     key,
			samples: members,
			start:   offset,
			cutoff:  offset + batches,
		})
		offset += batches
	}
	g.length = offset

	g.logger.Debug("binned samples",
		"samples", len(samples),
		"bins", len(g.bins),
		"batches", g.length,
		"batchSize", g.batchSize,
		"binWidth", g.binWidth,
	)
	return g, nil
}

// BinKey returns the bin of an input of the given length.
func BinKey(length, binWidth int) int {
	return floorDiv(length-1, binWidth)
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Len returns the number of batches in an epoch.
func (g *BinnedGenerator) Len() int {
	return g.length
}

// Batch encodes the batch at the global index.
func (g *BinnedGenerator) Batch(index int) (Batch, error) {
	if index < 0 || index >= g.length {
		return Batch{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, g.length)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	// first bin whose cutoff is past index
	b := &g.bins[sort.Search(len(g.bins), func(i int) bool {
		return g.bins[i].cutoff > index
	})]
	local := index - b.start
	lo := local * g.batchSize
	hi := min(lo+g.batchSize, len(b.samples))
	// the encoder gets its own copy so it cannot reorder the bin
	batch, err := g.encode(slices.Clone(b.samples[lo:hi]))
	if err != nil {
		return Batch{}, fmt.Errorf("encoding batch %d (bin %d): %w", index, b.key, err)
	}
	return batch, nil
}

// OnEpochEnd shuffles the samples inside each bin. Bin membership is unchanged.
func (g *BinnedGenerator) OnEpochEnd() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range g.bins {
		g.rng.Shuffle(len(b.samples), func(i, j int) {
			b.samples[i], b.samples[j] = b.samples[j], b.samples[i]
		})
	}
}

// Bins reports the layout of every non-empty bin in ascending key order.
func (g *BinnedGenerator) Bins() []BinInfo {
	infos := make([]BinInfo, len(g.bins))
	for i, b := range g.bins {
		infos[i] = BinInfo{
			Key:       b.key,
			MinLength: max(b.key*g.binWidth+1, 0),
			MaxLength: (b.key + 1) * g.binWidth,
			Samples:   len(b.samples),
			Batches:   b.cutoff - b.start,
			Start:     b.start,
			Cutoff:    b.cutoff,
		}
	}
	return infos
}

// BatchSize returns the maximum number of samples per batch.
func (g *BinnedGenerator) BatchSize() int {
	return g.batchSize
}

// BinWidth returns the input-length range covered by one bin.
func (g *BinnedGenerator) BinWidth() int {
	return g.binWidth
}
