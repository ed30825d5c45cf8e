package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Payload keys written alongside every stored vector.
const (
	PayloadSource            = "source"
	PayloadContentType       = "content_type"
	PayloadText              = "text"
	PayloadDocumentID        = "document_id"
	PayloadChunkNumber       = "chunk_number"
	PayloadTotalChunks       = "total_chunks"
	PayloadTextLength        = "text_length"
	PayloadTruncated         = "truncated"
	PayloadStartPos          = "start_pos"
	PayloadEndPos            = "end_pos"
	PayloadRecordType        = "record_type"
	PayloadSentenceBoundary  = "is_sentence_boundary"
	PayloadParagraphBoundary = "is_paragraph_boundary"
	PayloadTitle             = "title"
	PayloadDescription       = "description"
	PayloadTags              = "tags"
	PayloadSourceName        = "source_name"
	PayloadSourceURL         = "source_url"
	PayloadCustomFields      = "custom_fields"
)

const (
	documentIDPrefix    = "doc_"
	hashPrefixHexDigits = 15
	documentIDSeparator = "\x00"
)

// DocumentMetadata is the typed payload stored with each chunk vector.
// Fields outside the known set live in CustomFields.
type DocumentMetadata struct {
	Source              string
	ContentType         string
	Text                string
	DocumentID          string
	ChunkNumber         int
	TotalChunks         int
	TextLength          int
	Truncated           bool
	StartPos            int
	EndPos              int
	RecordType          string
	IsSentenceBoundary  bool
	IsParagraphBoundary bool
	Title               string
	Description         string
	Tags                []string
	SourceName          string
	SourceURL           string
	CustomFields        map[string]any
}

// DocumentEmbedding is a chunk ready to be written to a vector store.
type DocumentEmbedding struct {
	ID       int64
	Vector   []float32
	Metadata DocumentMetadata
}

// Point converts the embedding into its store representation.
func (e DocumentEmbedding) Point() Point {
	return Point{ID: e.ID, Vector: e.Vector, Payload: e.Metadata.Payload()}
}

// ChunkID derives the stable point id for a chunk. Identical text, source and
// chunk number always produce the same id, so re-ingestion overwrites.
func ChunkID(text, source string, chunkNumber int) int64 {
	return hashPrefix(text + source + strconv.Itoa(chunkNumber))
}

// DocumentIDFor derives the id shared by every chunk of one uploaded document.
func DocumentIDFor(source, fullText string) string {
	return documentIDPrefix + strconv.FormatInt(hashPrefix(source+documentIDSeparator+fullText), 10)
}

func hashPrefix(s string) int64 {
	sum := sha256.Sum256([]byte(s))
	digest := hex.EncodeToString(sum[:])
	// 15 hex digits is 60 bits, always positive in an int64.
	id, err := strconv.ParseInt(digest[:hashPrefixHexDigits], 16, 64)
	if err != nil {
		panic(fmt.Sprintf("domain: unexpected hash parse failure: %v", err))
	}
	return id
}

// NewDocumentMetadata builds metadata for a chunk. Known keys present in the
// custom fields (source_name, source_url, title, description, tags) are
// lifted into their typed fields; the rest stay in CustomFields.
func NewDocumentMetadata(c DocumentChunk, custom map[string]any) DocumentMetadata {
	textLength := c.OriginalLength
	if textLength == 0 {
		textLength = len([]rune(c.Text))
	}
	recordType := c.RecordType
	if recordType == "" {
		recordType = RecordTypeTextChunk
	}
	contentType := c.ContentType
	if contentType == "" {
		contentType = ContentTypeTextPlain
	}

	m := DocumentMetadata{
		Source:              c.Source,
		ContentType:         contentType,
		Text:                c.Text,
		DocumentID:          c.DocumentID,
		ChunkNumber:         c.ChunkNumber(),
		TotalChunks:         c.TotalChunks,
		TextLength:          textLength,
		StartPos:            c.StartPos,
		EndPos:              c.EndPos,
		RecordType:          recordType,
		IsSentenceBoundary:  c.IsSentenceBoundary,
		IsParagraphBoundary: c.IsParagraphBoundary,
		CustomFields:        map[string]any{},
	}

	for k, v := range custom {
		switch k {
		case PayloadSourceName:
			m.SourceName = strings.TrimSpace(asString(v))
		case PayloadSourceURL:
			m.SourceURL = strings.TrimSpace(asString(v))
		case PayloadTitle:
			m.Title = asString(v)
		case PayloadDescription:
			m.Description = asString(v)
		case PayloadTags:
			m.Tags = asStrings(v)
		default:
			m.CustomFields[k] = v
		}
	}
	return m
}

// Payload flattens the metadata into the map stored with the vector.
func (m DocumentMetadata) Payload() map[string]any {
	p := map[string]any{
		PayloadSource:            m.Source,
		PayloadContentType:       m.ContentType,
		PayloadText:              m.Text,
		PayloadDocumentID:        m.DocumentID,
		PayloadChunkNumber:       m.ChunkNumber,
		PayloadTotalChunks:       m.TotalChunks,
		PayloadTextLength:        m.TextLength,
		PayloadTruncated:         m.Truncated,
		PayloadStartPos:          m.StartPos,
		PayloadEndPos:            m.EndPos,
		PayloadRecordType:        m.RecordType,
		PayloadSentenceBoundary:  m.IsSentenceBoundary,
		PayloadParagraphBoundary: m.IsParagraphBoundary,
	}
	if m.Title != "" {
		p[PayloadTitle] = m.Title
	}
	if m.Description != "" {
		p[PayloadDescription] = m.Description
	}
	if len(m.Tags) > 0 {
		p[PayloadTags] = m.Tags
	}
	if m.SourceName != "" {
		p[PayloadSourceName] = m.SourceName
	}
	if m.SourceURL != "" {
		p[PayloadSourceURL] = m.SourceURL
	}
	custom := make(map[string]any, len(m.CustomFields))
	for k, v := range m.CustomFields {
		custom[k] = v
	}
	p[PayloadCustomFields] = custom
	return p
}

// MetadataFromPayload decodes a stored payload. It never fails: missing or
// mistyped fields decode to their zero values.
func MetadataFromPayload(p map[string]any) DocumentMetadata {
	m := DocumentMetadata{
		Source:              asString(p[PayloadSource]),
		ContentType:         asString(p[PayloadContentType]),
		Text:                asString(p[PayloadText]),
		DocumentID:          asString(p[PayloadDocumentID]),
		ChunkNumber:         asInt(p[PayloadChunkNumber]),
		TotalChunks:         asInt(p[PayloadTotalChunks]),
		TextLength:          asInt(p[PayloadTextLength]),
		Truncated:           asBool(p[PayloadTruncated]),
		StartPos:            asInt(p[PayloadStartPos]),
		EndPos:              asInt(p[PayloadEndPos]),
		RecordType:          asString(p[PayloadRecordType]),
		IsSentenceBoundary:  asBool(p[PayloadSentenceBoundary]),
		IsParagraphBoundary: asBool(p[PayloadParagraphBoundary]),
		Title:               asString(p[PayloadTitle]),
		Description:         asString(p[PayloadDescription]),
		Tags:                asStrings(p[PayloadTags]),
		SourceName:          asString(p[PayloadSourceName]),
		SourceURL:           asString(p[PayloadSourceURL]),
		CustomFields:        map[string]any{},
	}
	if custom, ok := p[PayloadCustomFields].(map[string]any); ok {
		for k, v := range custom {
			m.CustomFields[k] = v
		}
	}
	return m
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float32:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	default:
		return false
	}
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
