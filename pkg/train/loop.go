// Package train drives a batch generator through training epochs.
package train

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eapache/queue"

	"github.com/conneroisu/seqbatch/pkg/seq2seq"
)

// Step consumes one batch. It is called from several goroutines at once.
type Step func(ctx context.Context, epoch, index int, batch seq2seq.Batch) error

// Stats summarizes a run.
type Stats struct {
	// Epochs is the number of completed epochs.
	Epochs int
	// Batches is the number of batches handed to the step function.
	Batches int
	// Samples is the number of samples in those batches.
	Samples int
	// Cells is the number of encoder timesteps across all batches, padding included.
	Cells int
	// Occupied is the number of encoder timesteps holding a real token.
	Occupied int
}

// PaddingRatio returns the fraction of encoder timesteps that are padding.
func (s Stats) PaddingRatio() float64 {
	if s.Cells == 0 {
		return 0
	}
	return 1 - float64(s.Occupied)/float64(s.Cells)
}

// Loop fetches every batch of a generator once per epoch.
type Loop struct {
	// Generator supplies the batches.
	Generator seq2seq.Generator
	// Workers is the number of goroutines fetching batches. Defaults to 1.
	Workers int
	// Shuffle visits batch indices in random order.
	Shuffle bool
	// Rand orders the indices when Shuffle is set.
	Rand *rand.Rand
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// Run runs epochs full passes over the generator, calling OnEpochEnd after
// each one.
func (l *Loop) Run(ctx context.Context, epochs int, step Step) (Stats, error) {
	var stats Stats
	if l.Generator == nil {
		return stats, fmt.Errorf("%w: generator is required", seq2seq.ErrInvalidArgument)
	}
	if step == nil {
		return stats, fmt.Errorf("%w: step is required", seq2seq.ErrInvalidArgument)
	}
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	rng := l.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	for epoch := 0; epoch < epochs; epoch++ {
		start := time.Now()
		epochStats, err := l.runEpoch(ctx, epoch, l.order(rng), step)
		stats.Batches += epochStats.Batches
		stats.Samples += epochStats.Samples
		stats.Cells += epochStats.Cells
		stats.Occupied += epochStats.Occupied
		if err != nil {
			return stats, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		l.Generator.OnEpochEnd()
		stats.Epochs++
		logger.Info("epoch done",
			"epoch", epoch,
			"batches", epochStats.Batches,
			"samples", epochStats.Samples,
			"padding", fmt.Sprintf("%.3f", epochStats.PaddingRatio()),
			"took", time.Since(start),
		)
	}
	return stats, nil
}

// order queues the batch indices of one epoch.
func (l *Loop) order(rng *rand.Rand) *queue.Queue {
	n := l.Generator.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if l.Shuffle {
		rng.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	}
	q := queue.New()
	for _, i := range indices {
		q.Add(i)
	}
	return q
}

func (l *Loop) runEpoch(ctx context.Context, epoch int, pending *queue.Queue, step Step) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := max(l.Workers, 1)
	indices := make(chan int)
	go func() {
		defer close(indices)
		for pending.Length() > 0 {
			select {
			case indices <- pending.Remove().(int):
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		mu       sync.Mutex
		stats    Stats
		firstErr error
		wg       sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				batch, err := l.Generator.Batch(i)
				if err != nil {
					fail(err)
					return
				}
				if err := step(ctx, epoch, i, batch); err != nil {
					fail(fmt.Errorf("step %d: %w", i, err))
					return
				}
				cells, occupied := encoderOccupancy(batch)
				mu.Lock()
				stats.Batches++
				stats.Samples += batch.Size()
				stats.Cells += cells
				stats.Occupied += occupied
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return stats, firstErr
	}
	return stats, ctx.Err()
}

// encoderOccupancy counts the encoder timesteps of a batch and how many of
// them hold a token.
func encoderOccupancy(batch seq2seq.Batch) (cells, occupied int) {
	t := batch.EncoderInput
	if len(t.Dims) != 3 {
		return 0, 0
	}
	B, T, V := t.Dims[0], t.Dims[1], t.Dims[2]
	cells = B * T
	for row := 0; row < B*T; row++ {
		for _, v := range t.Data[row*V : (row+1)*V] {
			if v != 0 {
				occupied++
				break
			}
		}
	}
	return cells, occupied
}
