package chunk

import (
	"context"
	"strings"
	"unicode/utf8"
)

// semanticChunker splits on paragraph boundaries, falling back to sentence
// boundaries when a paragraph alone exceeds ChunkSize.
type semanticChunker struct {
	cfg Config
}

func (c *semanticChunker) Chunk(_ context.Context, content string) ([]*Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var pieces []string
	var current strings.Builder

	for _, raw := range strings.Split(content, "\n\n") {
		para := strings.TrimSpace(raw)
		if para == "" {
			continue
		}

		if current.Len() > 0 && runeLen(current.String())+runeLen(para) > c.cfg.ChunkSize {
			pieces = append(pieces, current.String())
			overlap := tailRunes(current.String(), c.cfg.ChunkOverlap)
			current.Reset()
			current.WriteString(overlap)
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)

		if runeLen(current.String()) > c.cfg.ChunkSize {
			pieces = append(pieces, splitBySentences(current.String(), c.cfg)...)
			current.Reset()
		}
	}

	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	return buildChunks(pieces, c.cfg.MinChunkSize), nil
}

// splitBySentences splits text on '.', '!', '?' boundaries, packing
// sentences into ChunkSize-bounded, overlapping pieces.
func splitBySentences(text string, cfg Config) []string {
	sentences := sentenceSplit(text)

	var pieces []string
	var current strings.Builder

	for _, sentence := range sentences {
		if current.Len() > 0 && runeLen(current.String())+runeLen(sentence) > cfg.ChunkSize {
			pieces = append(pieces, current.String())
			overlap := tailRunes(current.String(), cfg.ChunkOverlap)
			current.Reset()
			current.WriteString(overlap)
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}

	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	return pieces
}

func sentenceSplit(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
				sentences = append(sentences, trimmed)
			}
			current.Reset()
		}
	}
	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		sentences = append(sentences, trimmed)
	}
	return sentences
}

// fixedSizeChunker splits into fixed-width, overlapping rune windows with
// no regard for content structure.
type fixedSizeChunker struct {
	cfg Config
}

func (c *fixedSizeChunker) Chunk(_ context.Context, content string) ([]*Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	runes := []rune(content)
	step := max(c.cfg.ChunkSize-c.cfg.ChunkOverlap, 1)

	var pieces []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.cfg.ChunkSize, len(runes))
		pieces = append(pieces, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return buildChunks(pieces, c.cfg.MinChunkSize), nil
}

// codeChunker splits on common function/type/class boundaries so a symbol
// and its signature stay together in one chunk.
type codeChunker struct {
	cfg Config
}

var codeBoundaryPrefixes = []string{
	"func ", "type ", "package ",
	"class ", "def ", "async def ",
	"fn ", "pub fn ", "async fn ", "impl ", "struct ", "enum ", "trait ",
	"function ", "export function ", "export default ", "export class ",
	"interface ", "const ", "public class ", "private class ",
}

func isCodeBoundary(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	for _, prefix := range codeBoundaryPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func (c *codeChunker) Chunk(_ context.Context, content string) ([]*Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var pieces []string
	var current strings.Builder
	forceSplitSize := c.cfg.ChunkSize * 2

	for _, line := range strings.Split(content, "\n") {
		if isCodeBoundary(line) && current.Len() > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
		}

		current.WriteString(line)
		current.WriteString("\n")

		if runeLen(current.String()) > forceSplitSize {
			pieces = append(pieces, current.String())
			current.Reset()
		}
	}

	if strings.TrimSpace(current.String()) != "" {
		pieces = append(pieces, current.String())
	}

	return buildChunks(pieces, c.cfg.MinChunkSize), nil
}

func buildChunks(pieces []string, minChunkSize int) []*Chunk {
	chunks := make([]*Chunk, 0, len(pieces))
	offset := 0
	index := 0
	for _, p := range pieces {
		n := runeLen(p)
		if n < minChunkSize {
			offset += n
			continue
		}
		chunks = append(chunks, &Chunk{
			Content:     p,
			Index:       index,
			StartOffset: offset,
			EndOffset:   offset + n,
		})
		index++
		offset += n
	}
	return chunks
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// tailRunes returns the last n runes of s, or all of s if it has fewer.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
