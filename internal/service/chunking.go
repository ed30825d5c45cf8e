package service

import (
	"strings"
	"unicode"

	"github.com/cloo-solutions/strom/internal/domain"
)

// ChunkConfig controls document segmentation. Sizes are in runes.
type ChunkConfig struct {
	ChunkSize      int
	Overlap        int
	MinChunkSize   int
	SentenceAware  bool
	ParagraphAware bool
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:      1000,
		Overlap:        200,
		MinChunkSize:   200,
		SentenceAware:  true,
		ParagraphAware: true,
	}
}

func (c ChunkConfig) normalized() ChunkConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkConfig().ChunkSize
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.ChunkSize {
		c.Overlap = c.ChunkSize - 1
	}
	if c.MinChunkSize < 0 {
		c.MinChunkSize = 0
	}
	return c
}

// ChunkText splits text into overlapping chunks. Each proposed end is pulled
// back to the latest sentence end or paragraph break within Overlap runes of
// it; trailing short chunks are kept as is rather than merged. Every chunk's
// Text is exactly the runes in [StartPos, EndPos).
func ChunkText(text string, cfg ChunkConfig) []domain.Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	cfg = cfg.normalized()
	step := max(cfg.ChunkSize-cfg.Overlap, 1)

	var chunks []domain.Chunk
	start := 0
	for start < n {
		end := min(start+cfg.ChunkSize, n)
		if end < n {
			end = realignEnd(runes, start, end, cfg)
		}
		if end <= start {
			start += step
			continue
		}

		sentence, paragraph := boundaryFlags(runes, end)
		chunks = append(chunks, domain.Chunk{
			Index:               len(chunks),
			Text:                string(runes[start:end]),
			StartPos:            start,
			EndPos:              end,
			IsSentenceBoundary:  sentence,
			IsParagraphBoundary: paragraph,
		})

		if end >= n {
			break
		}
		start = max(end-cfg.Overlap, start+cfg.ChunkSize/2, start+1)
	}

	return chunks
}

// PrepareDocument segments a document and annotates each chunk with the
// document it belongs to. A whitespace-only document has nothing to ingest.
func PrepareDocument(text, filename string, cfg ChunkConfig) []domain.DocumentChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	chunks := ChunkText(text, cfg)
	if len(chunks) == 0 {
		return nil
	}
	documentID := domain.DocumentIDFor(filename, text)
	out := make([]domain.DocumentChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, domain.DocumentChunk{
			Chunk:          c,
			Source:         filename,
			ContentType:    domain.ContentTypeTextPlain,
			DocumentID:     documentID,
			TotalChunks:    len(chunks),
			OriginalLength: len([]rune(c.Text)),
			RecordType:     domain.RecordTypeTextChunk,
		})
	}
	return out
}

func realignEnd(runes []rune, start, end int, cfg ChunkConfig) int {
	if !cfg.SentenceAware && !cfg.ParagraphAware {
		return end
	}
	lo := max(start, end-cfg.Overlap)
	hi := min(len(runes), end+cfg.Overlap)
	minEnd := start + max(cfg.MinChunkSize, 1)

	best := -1
	if cfg.SentenceAware {
		best = max(best, lastSentenceEnd(runes, lo, hi, minEnd, end))
	}
	if cfg.ParagraphAware {
		best = max(best, lastParagraphBreak(runes, lo, hi, minEnd, end))
	}
	if best < 0 {
		return end
	}
	return best
}

// lastSentenceEnd returns the end of the last `[.!?]\s+` match inside
// [lo,hi) that ends within [minEnd,limit], or -1.
func lastSentenceEnd(runes []rune, lo, hi, minEnd, limit int) int {
	found := -1
	for i := lo; i < hi-1; i++ {
		if !isSentencePunct(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		j := i + 1
		for j < hi && unicode.IsSpace(runes[j]) {
			j++
		}
		if j > limit {
			break
		}
		if j >= minEnd {
			found = j
		}
		i = j - 1
	}
	return found
}

// lastParagraphBreak returns the end of the last `\n\s*\n` match inside
// [lo,hi) that ends within [minEnd,limit], or -1.
func lastParagraphBreak(runes []rune, lo, hi, minEnd, limit int) int {
	found := -1
	for i := lo; i < hi; i++ {
		if runes[i] != '\n' {
			continue
		}
		lastNL := -1
		for k := i + 1; k < hi && unicode.IsSpace(runes[k]); k++ {
			if runes[k] == '\n' {
				lastNL = k
			}
		}
		if lastNL < 0 {
			continue
		}
		matchEnd := lastNL + 1
		if matchEnd > limit {
			break
		}
		if matchEnd >= minEnd {
			found = matchEnd
		}
		i = lastNL
	}
	return found
}

func boundaryFlags(runes []rune, end int) (sentence, paragraph bool) {
	if end >= len(runes) {
		return true, true
	}
	l := end
	for l > 0 && unicode.IsSpace(runes[l-1]) {
		l--
	}
	r := end
	for r < len(runes) && unicode.IsSpace(runes[r]) {
		r++
	}
	if l < end || r > end {
		sentence = l > 0 && isSentencePunct(runes[l-1])
	}
	newlines := 0
	for _, c := range runes[l:r] {
		if c == '\n' {
			newlines++
		}
	}
	return sentence, newlines >= 2
}

func isSentencePunct(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
