package data

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Tokenizer splits raw text into an ordered sequence of tokens.
type Tokenizer interface {
	Split(text string) []string
}

// Sample is an ordered pair of token sequences.
type Sample struct {
	// Input is the source sequence fed to the encoder.
	Input []string
	// Output is the target sequence the decoder learns to produce.
	Output []string
}

// Loader is an interface for sample loaders.
type Loader interface {
	Load() ([]Sample, error)
}

// PairLoader reads tab separated sentence pairs, one pair per line.
//
// Columns after the second are ignored, so files in the Anki export format
// (source, target, attribution) load as is.
type PairLoader struct {
	// Path is the file to read.
	Path string
	// Tokenizer splits both columns into tokens.
	Tokenizer Tokenizer
	// MaxSamples caps the number of pairs read. Zero means no cap.
	MaxSamples int
	// Reverse swaps the input and output columns.
	Reverse bool
}

// NewPairLoader returns a new PairLoader instance.
func NewPairLoader(path string, tok Tokenizer) *PairLoader {
	return &PairLoader{Path: path, Tokenizer: tok}
}

// Load reads every pair from the file.
func (loader *PairLoader) Load() ([]Sample, error) {
	if loader.Path == "" {
		return nil, fmt.Errorf("dataset file path is required")
	}
	file, err := os.Open(loader.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return loader.read(file)
}

// read parses pairs from r.
func (loader *PairLoader) read(r io.Reader) ([]Sample, error) {
	if loader.Tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	var samples []Sample
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cols := strings.Split(text, "\t")
		if len(cols) < 2 {
			return nil, fmt.Errorf("line %d: expected at least 2 tab separated columns, got %d", line, len(cols))
		}
		in, out := cols[0], cols[1]
		if loader.Reverse {
			in, out = out, in
		}
		samples = append(samples, Sample{
			Input:  loader.Tokenizer.Split(in),
			Output: loader.Tokenizer.Split(out),
		})
		if loader.MaxSamples > 0 && len(samples) == loader.MaxSamples {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", loader.Path, err)
	}
	return samples, nil
}
