package seq2seq

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/seqbatch/pkg/data"
)

// sampleOfLen builds a sample whose input has n tokens and whose output is
// an id unique within a test.
func sampleOfLen(n int, id string) data.Sample {
	return data.Sample{Input: strings.Split(strings.Repeat("x", n), ""), Output: []string{id}}
}

// identityEncoder returns a batch whose encoder input has one row per sample
// and records the samples it was given.
type identityEncoder struct {
	mu    sync.Mutex
	calls [][]data.Sample
}

func (e *identityEncoder) Encode(samples []data.Sample) (Batch, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]data.Sample(nil), samples...))
	e.mu.Unlock()
	return Batch{EncoderInput: NewTensor(len(samples), 1, 1)}, nil
}

// passIDs fetches every batch in reverse index order and returns the sample
// ids the encoder was given.
func passIDs(t *testing.T, g *BinnedGenerator, enc *identityEncoder) []string {
	t.Helper()
	enc.mu.Lock()
	enc.calls = nil
	enc.mu.Unlock()
	for i := g.Len() - 1; i >= 0; i-- {
		_, err := g.Batch(i)
		require.NoError(t, err)
	}
	var ids []string
	for _, call := range enc.calls {
		for _, s := range call {
			ids = append(ids, s.Output[0])
		}
	}
	return ids
}

// binOrder returns the sample ids of one bin in storage order.
func binOrder(g *BinnedGenerator, i int) []string {
	var ids []string
	for _, s := range g.bins[i].samples {
		ids = append(ids, s.Output[0])
	}
	return ids
}

func TestNewBinnedGeneratorExample(t *testing.T) {
	samples := []data.Sample{
		sampleOfLen(3, "a"),
		sampleOfLen(7, "b"),
		sampleOfLen(8, "c"),
		sampleOfLen(12, "d"),
	}
	enc := &identityEncoder{}
	g, err := NewBinnedGenerator(samples, 2, enc.Encode, WithBinWidth(5))
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())

	bins := g.Bins()
	require.Len(t, bins, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{bins[0].Key, bins[1].Key, bins[2].Key})
	assert.Equal(t, []int{1, 2, 1}, []int{bins[0].Samples, bins[1].Samples, bins[2].Samples})
	assert.Equal(t, BinInfo{Key: 1, MinLength: 6, MaxLength: 10, Samples: 2, Batches: 1, Start: 1, Cutoff: 2}, bins[1])

	_, err = g.Batch(g.Len())
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = g.Batch(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestNewBinnedGeneratorInvalidArguments(t *testing.T) {
	enc := &identityEncoder{}
	tests := []struct {
		name      string
		batchSize int
		encode    BatchEncoder
		opts      []Option
	}{
		{name: "zero batch size", batchSize: 0, encode: enc.Encode},
		{name: "negative batch size", batchSize: -2, encode: enc.Encode},
		{name: "zero bin width", batchSize: 2, encode: enc.Encode, opts: []Option{WithBinWidth(0)}},
		{name: "negative bin width", batchSize: 2, encode: enc.Encode, opts: []Option{WithBinWidth(-5)}},
		{name: "nil encoder", batchSize: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBinnedGenerator([]data.Sample{sampleOfLen(1, "a")}, tt.batchSize, tt.encode, tt.opts...)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestBinnedGeneratorEmpty(t *testing.T) {
	enc := &identityEncoder{}
	g, err := NewBinnedGenerator(nil, 4, enc.Encode)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.Bins())
	_, err = g.Batch(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestBinnedGeneratorDefaultBinWidth(t *testing.T) {
	enc := &identityEncoder{}
	g, err := NewBinnedGenerator([]data.Sample{sampleOfLen(5, "a"), sampleOfLen(6, "b")}, 4, enc.Encode)
	require.NoError(t, err)
	assert.Equal(t, DefaultBinWidth, g.BinWidth())
	assert.Equal(t, 2, g.Len())
}

func TestBinnedGeneratorEmptyInputBin(t *testing.T) {
	enc := &identityEncoder{}
	g, err := NewBinnedGenerator([]data.Sample{sampleOfLen(0, "a"), sampleOfLen(1, "b")}, 4, enc.Encode)
	require.NoError(t, err)
	bins := g.Bins()
	require.Len(t, bins, 2)
	assert.Equal(t, -1, bins[0].Key)
	assert.Equal(t, 0, bins[0].MaxLength)
	assert.Equal(t, 0, bins[1].Key)
}

func TestBinnedGeneratorPartialLastBatch(t *testing.T) {
	var samples []data.Sample
	for i := 0; i < 7; i++ {
		samples = append(samples, sampleOfLen(4, fmt.Sprint(i)))
	}
	enc := &identityEncoder{}
	g, err := NewBinnedGenerator(samples, 3, enc.Encode)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())

	sizes := make([]int, g.Len())
	for i := range sizes {
		batch, err := g.Batch(i)
		require.NoError(t, err)
		sizes[i] = batch.Size()
	}
	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func randomSamples(rng *rand.Rand, n, maxLen int) []data.Sample {
	samples := make([]data.Sample, n)
	for i := range samples {
		samples[i] = sampleOfLen(1+rng.Intn(maxLen), fmt.Sprint(i))
	}
	return samples
}

func TestBinnedGeneratorProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 25; trial++ {
		batchSize := 1 + rng.Intn(6)
		binWidth := 1 + rng.Intn(7)
		samples := randomSamples(rng, 1+rng.Intn(120), 40)

		enc := &identityEncoder{}
		g, err := NewBinnedGenerator(samples, batchSize, enc.Encode,
			WithBinWidth(binWidth), WithRand(rand.New(rand.NewSource(int64(trial)))))
		require.NoError(t, err)

		counts := map[int]int{}
		for _, s := range samples {
			counts[floorDiv(len(s.Input)-1, binWidth)]++
		}
		want := 0
		for _, c := range counts {
			want += (c + batchSize - 1) / batchSize
		}
		require.Equal(t, want, g.Len())

		// expected batch sizes, indexed globally
		var sizes []int
		for _, b := range g.Bins() {
			for j := 0; j < b.Batches; j++ {
				size := batchSize
				if j == b.Batches-1 && b.Samples%batchSize != 0 {
					size = b.Samples % batchSize
				}
				sizes = append(sizes, size)
			}
		}
		require.Len(t, sizes, g.Len())

		before := membership(g)
		for pass := 0; pass < 2; pass++ {
			ids := passIDs(t, g, enc)
			require.Len(t, enc.calls, g.Len())
			for k, call := range enc.calls {
				// calls were made from the last index down
				require.Equal(t, sizes[g.Len()-1-k], len(call))
			}
			seen := map[string]int{}
			for _, id := range ids {
				seen[id]++
			}
			require.Len(t, seen, len(samples))
			for id, n := range seen {
				require.Equal(t, 1, n, "sample %s", id)
			}
			g.OnEpochEnd()
			assert.Equal(t, before, membership(g))
		}
	}
}

// membership returns the sorted sample ids of every bin.
func membership(g *BinnedGenerator) map[int][]string {
	out := map[int][]string{}
	for _, b := range g.bins {
		var ids []string
		for _, s := range b.samples {
			ids = append(ids, s.Output[0])
		}
		sort.Strings(ids)
		out[b.key] = ids
	}
	return out
}

func TestBinnedGeneratorShuffleChangesOrder(t *testing.T) {
	var samples []data.Sample
	for i := 0; i < 50; i++ {
		samples = append(samples, sampleOfLen(3, fmt.Sprint(i)))
	}
	enc := &identityEncoder{}
	g, err := NewBinnedGenerator(samples, 10, enc.Encode, WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)
	before := passIDs(t, g, enc)
	g.OnEpochEnd()
	after := passIDs(t, g, enc)
	assert.NotEqual(t, before, after)
	assert.ElementsMatch(t, before, after)
}

func TestBinnedGeneratorEncodesSlice(t *testing.T) {
	samples := []data.Sample{
		sampleOfLen(2, "a"),
		sampleOfLen(2, "b"),
		sampleOfLen(2, "c"),
		sampleOfLen(9, "d"),
	}
	enc := &identityEncoder{}
	g, err := NewBinnedGenerator(samples, 2, enc.Encode)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())

	_, err = g.Batch(2)
	require.NoError(t, err)
	_, err = g.Batch(1)
	require.NoError(t, err)
	require.Len(t, enc.calls, 2)
	assert.Equal(t, []data.Sample{samples[3]}, enc.calls[0])
	assert.Equal(t, []data.Sample{samples[2]}, enc.calls[1])
}

func TestBinnedGeneratorEncoderCannotReorderBin(t *testing.T) {
	samples := []data.Sample{
		sampleOfLen(3, "c"),
		sampleOfLen(3, "a"),
		sampleOfLen(3, "b"),
		sampleOfLen(3, "d"),
	}
	sorting := func(batch []data.Sample) (Batch, error) {
		sort.Slice(batch, func(i, j int) bool { return batch[i].Output[0] < batch[j].Output[0] })
		return Batch{EncoderInput: NewTensor(len(batch), 1, 1)}, nil
	}
	g, err := NewBinnedGenerator(samples, 2, sorting)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b", "d"}, binOrder(g, 0))

	for i := 0; i < g.Len(); i++ {
		_, err := g.Batch(i)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, binOrder(g, 0))
}

func TestBinnedGeneratorEncoderError(t *testing.T) {
	boom := fmt.Errorf("boom")
	g, err := NewBinnedGenerator([]data.Sample{sampleOfLen(1, "a")}, 1,
		func([]data.Sample) (Batch, error) { return Batch{}, boom })
	require.NoError(t, err)
	_, err = g.Batch(0)
	assert.ErrorIs(t, err, boom)
}

func TestBinnedGeneratorConcurrentBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := randomSamples(rng, 200, 30)
	enc := &identityEncoder{}
	g, err := NewBinnedGenerator(samples, 8, enc.Encode)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := g.Len() - 1 - w; i >= 0; i -= 8 {
				batch, err := g.Batch(i)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				total += batch.Size()
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, len(samples), total)
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, -1, floorDiv(-1, 5))
	assert.Equal(t, 0, floorDiv(0, 5))
	assert.Equal(t, 0, floorDiv(4, 5))
	assert.Equal(t, 1, floorDiv(5, 5))
}
