package services

type TextChunker interface {
	Split(text string, chunkSize int, overlap int) ([]string, error)
}

type textChunker struct{}

func NewTextChunker() TextChunker {
	return &textChunker{}
}

// Split walks text with a stride of chunkSize-overlap, emitting windows of at
// most chunkSize runes. The last window may be shorter. Empty text yields no chunks.
func (tc *textChunker) Split(text string, chunkSize int, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, &ConfigurationError{Param: "chunkSize", Reason: "must be positive"}
	}
	if overlap < 0 {
		return nil, &ConfigurationError{Param: "overlap", Reason: "must not be negative"}
	}
	if overlap >= chunkSize {
		return nil, &ConfigurationError{Param: "overlap", Reason: "must be smaller than chunkSize"}
	}

	runes := []rune(text)
	stride := chunkSize - overlap
	chunks := make([]string, 0, (len(runes)+stride-1)/stride)

	for i := 0; i < len(runes); i += stride {
		end := min(i+chunkSize, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}

	return chunks, nil
}
