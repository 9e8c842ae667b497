package rag

import (
	"strings"
	"unicode/utf8"
)

// Chunk is one piece of a split document.
type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"index"` // 0-based position within the document
}

// Splitter breaks document text into overlapping chunks before
// embedding. Chunks end on natural boundaries where possible so a
// retrieved chunk reads as coherent context for the answer prompt.
type Splitter struct {
	Size    int // target chunk size in runes
	Overlap int // runes carried over from the previous chunk
}

// Ingestion defaults: 1000-rune chunks with a 200-rune overlap.
const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// NewSplitter returns a splitter with the given size and overlap.
// Non-positive size falls back to the default; overlap is clamped
// below the chunk size.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 5
	}
	return Splitter{Size: size, Overlap: overlap}
}

// Boundary separators tried in order of preference. Text containing
// none of them is cut into fixed rune windows.
var chunkSeparators = []string{"\n\n", "\n", ". ", " "}

// Split breaks text into chunks of roughly s.Size runes, preferring
// paragraph breaks, then lines, sentences, and words. Text at or under
// the target size comes back as a single chunk.
func (s Splitter) Split(text string) []Chunk {
	if utf8.RuneCountInString(text) <= s.Size {
		return []Chunk{{Text: text}}
	}

	segments, sep := segmentText(text, s.Size)

	var chunks []Chunk
	current := ""
	for _, seg := range segments {
		joined := seg
		if current != "" {
			joined = current + sep + seg
		}
		if utf8.RuneCountInString(joined) > s.Size && current != "" {
			chunks = append(chunks, Chunk{Text: current, Index: len(chunks)})
			current = runeTail(current, s.Overlap)
			if current != "" {
				current += sep
			}
			current += seg
			continue
		}
		current = joined
	}
	if current != "" {
		chunks = append(chunks, Chunk{Text: current, Index: len(chunks)})
	}
	return chunks
}

// segmentText splits on the first separator that divides the text.
// The fallback is windows of at most size runes with an empty joiner.
func segmentText(text string, size int) ([]string, string) {
	for _, sep := range chunkSeparators {
		if parts := strings.Split(text, sep); len(parts) > 1 {
			return parts, sep
		}
	}

	runes := []rune(text)
	var windows []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
	}
	return windows, ""
}

// runeTail returns the last n runes of s.
func runeTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if n >= len(runes) {
		return s
	}
	return string(runes[len(runes)-n:])
}
