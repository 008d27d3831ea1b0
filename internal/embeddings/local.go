package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/streed/notesai/internal/constants"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/logger"
)

// LocalProvider is an in-process feature-hashing model. It needs no network
// and no credentials, and produces the same vector for the same text across
// runs, which makes it the default.
//
// Features, each hashed into signed buckets:
//   - word unigrams with stopwords dropped
//   - word bigrams (keep some phrase order)
//   - character trigrams of each word (tolerate typos and inflections)
type LocalProvider struct {
	dimensions int

	once      sync.Once
	stopwords map[string]struct{}
	loadErr   error
}

func NewLocalProvider(dimensions int) *LocalProvider {
	if dimensions == 0 {
		dimensions = constants.LocalModelDimensions
	}
	return &LocalProvider{dimensions: dimensions}
}

func (p *LocalProvider) ID() ProviderID  { return ProviderLocal }
func (p *LocalProvider) Dimensions() int { return p.dimensions }

// load builds the model tables on first use.
func (p *LocalProvider) load() error {
	p.once.Do(func() {
		if p.dimensions < 16 {
			p.loadErr = fmt.Errorf("%w: dimensions must be at least 16, got %d", interrors.ErrModelLoad, p.dimensions)
			return
		}
		p.stopwords = make(map[string]struct{}, len(stopwordList))
		for _, w := range stopwordList {
			p.stopwords[w] = struct{}{}
		}
		logger.Debug("Loaded local embedding model (%d dimensions, %d stopwords)", p.dimensions, len(p.stopwords))
	})
	return p.loadErr
}

func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.load(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, p.dimensions)
	words := tokenize(text)

	content := words[:0:0]
	for _, w := range words {
		if _, stop := p.stopwords[w]; !stop {
			content = append(content, w)
		}
	}
	// A note made only of stopwords still has to embed to something.
	if len(content) == 0 {
		content = words
	}
	if len(content) == 0 {
		if t := strings.TrimSpace(text); t != "" {
			content = []string{t}
		}
	}

	for i, w := range content {
		p.add(vec, "w:"+w, 1.0)
		if i > 0 {
			p.add(vec, "b:"+content[i-1]+" "+w, 0.5)
		}
		padded := "<" + w + ">"
		r := []rune(padded)
		for j := 0; j+3 <= len(r); j++ {
			p.add(vec, "c:"+string(r[j:j+3]), 0.25)
		}
	}

	out := make([]float32, p.dimensions)
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// add hashes feature into a bucket; a second hash bit picks the sign so
// collisions tend to cancel rather than accumulate.
func (p *LocalProvider) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(len(vec)))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var stopwordList = []string{
	"a", "an", "and", "are", "as", "at", "be", "been", "but", "by", "can",
	"did", "do", "does", "for", "from", "had", "has", "have", "he", "her",
	"his", "i", "if", "in", "into", "is", "it", "its", "me", "my", "of",
	"on", "or", "our", "she", "so", "that", "the", "their", "them", "then",
	"there", "these", "they", "this", "to", "was", "we", "were", "what",
	"when", "which", "who", "will", "with", "would", "you", "your",
}
