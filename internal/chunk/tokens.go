package chunk

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenSplitter splits an oversized chunk's content into token-bounded
// pieces with a line-based overlap, grounded on the reference
// implementation's internal/indexer/token_chunker.go. It is the fallback
// this implementation reaches for when a single parsed function/class
// node is too large for one index document, in place of the char-count-only
// truncation search.Document.EnforceSizeLimit applies as a last resort.
type TokenSplitter struct {
	tokenizer *tiktoken.Tiktoken
}

// NewTokenSplitter loads the cl100k_base encoding, the same one the
// reference implementation uses (compatible with the embedding models this
// system targets).
func NewTokenSplitter() (*TokenSplitter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TokenSplitter{tokenizer: enc}, nil
}

func (ts *TokenSplitter) tokenCount(s string) int {
	return len(ts.tokenizer.Encode(s, nil, nil))
}

// Split breaks rc.Content into line-aligned pieces of at most maxTokens
// tokens each, with overlapLines of overlap between consecutive pieces,
// renumbering StartLine/EndLine relative to rc.StartLine. All other rc
// fields (FunctionName, ClassName, ChunkType, ParentChunkID) are copied onto
// every piece.
func (ts *TokenSplitter) Split(rc rawChunk, maxTokens, overlapLines int) []rawChunk {
	if ts.tokenCount(rc.Content) <= maxTokens {
		return []rawChunk{rc}
	}

	lines := strings.Split(rc.Content, "\n")
	var pieces []rawChunk

	start := 0
	for start < len(lines) {
		tokens := 0
		end := start
		for end < len(lines) {
			lineTokens := ts.tokenCount(lines[end])
			if tokens+lineTokens > maxTokens && end > start {
				break
			}
			tokens += lineTokens
			end++
		}

		piece := rc
		piece.Content = strings.Join(lines[start:end], "\n")
		piece.StartLine = rc.StartLine + start
		piece.EndLine = rc.StartLine + end - 1
		pieces = append(pieces, piece)

		if end >= len(lines) {
			break
		}
		next := end - overlapLines
		if next <= start {
			next = end
		}
		start = next
	}

	return pieces
}
