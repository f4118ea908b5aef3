package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"rag-playground/internal/models"
)

// separators are tried in order: paragraph, line, sentence, word, then a
// hard cut between characters.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// maxSeparatorLen is the longest entry in separators, in runes.
const maxSeparatorLen = 2

// Splitter cuts documents into overlapping chunks of at most ChunkSize runes.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	splitter     textsplitter.RecursiveCharacter
	// tight re-splits merged chunks that overshoot ChunkSize by a separator.
	tight textsplitter.RecursiveCharacter
}

func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}

	tightSize := max(1, chunkSize-maxSeparatorLen)
	return &Splitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		splitter:     newRecursive(chunkSize, chunkOverlap),
		tight:        newRecursive(tightSize, min(chunkOverlap, tightSize-1)),
	}, nil
}

func newRecursive(chunkSize, chunkOverlap int) textsplitter.RecursiveCharacter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(separators),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
}

// Split returns the chunks of text in document order. Blank input has no chunks.
func (s *Splitter) Split(text string) ([]models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(parts))
	for _, p := range parts {
		bounded, err := s.bound(p)
		if err != nil {
			return nil, err
		}
		for _, b := range bounded {
			if b == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{Content: b, Index: len(chunks)})
		}
	}
	return chunks, nil
}

// bound keeps part within ChunkSize runes. The recursive splitter can join
// two splits into one chunk a separator longer than allowed, so such parts
// go through the tighter splitter and anything left over is cut by runes.
func (s *Splitter) bound(part string) ([]string, error) {
	if utf8.RuneCountInString(part) <= s.ChunkSize {
		return []string{part}, nil
	}

	parts, err := s.tight.SplitText(part)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	var out []string
	for _, p := range parts {
		out = append(out, cutRunes(p, s.ChunkSize)...)
	}
	return out, nil
}

func cutRunes(s string, size int) []string {
	if utf8.RuneCountInString(s) <= size {
		return []string{s}
	}
	runes := []rune(s)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
