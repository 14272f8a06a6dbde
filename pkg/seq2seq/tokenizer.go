package seq2seq

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/conneroisu/seqbatch/pkg/data"
)

// Reserved vocabulary entries.
const (
	StartToken = "\t"
	StopToken  = "\n"
	PadToken   = ""
)

// ErrUnknownToken is returned when a token is not part of a vocabulary.
var ErrUnknownToken = errors.New("unknown token")

// gpt2Pattern is the GPT-2 pre-tokenization expression. The lookahead in
// `\s+(?!\S)` is not supported by the standard regexp package.
const gpt2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// CharTokenizer splits text into individual characters.
type CharTokenizer struct{}

// Split splits text into runes.
func (CharTokenizer) Split(text string) []string {
	tokens := make([]string, 0, len(text))
	for _, r := range text {
		tokens = append(tokens, string(r))
	}
	return tokens
}

// WordTokenizer splits text into words and punctuation.
type WordTokenizer struct {
	// TrimSpace drops the leading space GPT-2 keeps on each word and skips
	// whitespace-only tokens.
	TrimSpace bool
	re        *regexp2.Regexp
}

// NewWordTokenizer returns a new WordTokenizer instance.
func NewWordTokenizer(trimSpace bool) *WordTokenizer {
	return &WordTokenizer{
		TrimSpace: trimSpace,
		re:        regexp2.MustCompile(gpt2Pattern, regexp2.None),
	}
}

// Split splits text into tokens.
func (t *WordTokenizer) Split(text string) []string {
	var tokens []string
	m, err := t.re.FindStringMatch(text)
	for err == nil && m != nil {
		tok := m.String()
		if t.TrimSpace {
			tok = strings.TrimSpace(tok)
		}
		if tok != "" {
			tokens = append(tokens, tok)
		}
		m, err = t.re.FindNextMatch(m)
	}
	return tokens
}

// NewTokenizer returns the tokenizer registered under name.
func NewTokenizer(name string) (data.Tokenizer, error) {
	switch name {
	case "char", "":
		return CharTokenizer{}, nil
	case "word":
		return NewWordTokenizer(true), nil
	default:
		return nil, fmt.Errorf("%w: tokenizer %q", ErrInvalidArgument, name)
	}
}

// Vocabulary maps tokens to one-hot indices.
type Vocabulary struct {
	tokenTable []string
	index      map[string]int
}

// NewVocabulary builds a vocabulary holding the reserved tokens followed by
// tokens in sorted order.
func NewVocabulary(tokens []string) *Vocabulary {
	vocab := &Vocabulary{index: map[string]int{}}
	for _, tok := range []string{PadToken, StartToken, StopToken} {
		vocab.add(tok)
	}
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	for _, tok := range sorted {
		vocab.add(tok)
	}
	return vocab
}

// BuildVocabularies collects the input and output vocabularies of samples.
func BuildVocabularies(samples []data.Sample) (input, output *Vocabulary) {
	var in, out []string
	for _, s := range samples {
		in = append(in, s.Input...)
		out = append(out, s.Output...)
	}
	return NewVocabulary(in), NewVocabulary(out)
}

func (v *Vocabulary) add(tok string) {
	if _, ok := v.index[tok]; ok {
		return
	}
	v.index[tok] = len(v.tokenTable)
	v.tokenTable = append(v.tokenTable, tok)
}

// Size returns the number of entries, reserved tokens included.
func (v *Vocabulary) Size() int {
	return len(v.tokenTable)
}

// ID returns the index of tok.
func (v *Vocabulary) ID(tok string) (int, error) {
	id, ok := v.index[tok]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
	}
	return id, nil
}

// Encode maps tokens to indices.
func (v *Vocabulary) Encode(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		id, err := v.ID(tok)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Decode maps indices back to tokens.
func (v *Vocabulary) Decode(ids []int) ([]string, error) {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(v.tokenTable) {
			return nil, fmt.Errorf("not valid token: %d", id)
		}
		tokens = append(tokens, v.tokenTable[id])
	}
	return tokens, nil
}
