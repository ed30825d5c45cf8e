package domain

// RecordTypeTextChunk marks payloads produced from plain-text uploads.
const RecordTypeTextChunk = "text_chunk"

// ContentTypeTextPlain is the only content type accepted for ingestion.
const ContentTypeTextPlain = "text/plain"

// Chunk is a contiguous slice of a source text. Positions are rune offsets
// into the source, EndPos exclusive.
type Chunk struct {
	Index               int
	Text                string
	StartPos            int
	EndPos              int
	IsSentenceBoundary  bool
	IsParagraphBoundary bool
}

// Len returns the number of runes the chunk spans in the source text.
func (c Chunk) Len() int {
	return c.EndPos - c.StartPos
}

// DocumentChunk is a Chunk annotated with the document it came from.
type DocumentChunk struct {
	Chunk
	Source         string
	ContentType    string
	DocumentID     string
	TotalChunks    int
	OriginalLength int
	RecordType     string
}

// ChunkNumber is the zero-based position of the chunk within its document.
func (c DocumentChunk) ChunkNumber() int {
	return c.Index
}
