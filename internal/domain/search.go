package domain

// Point is a single record in a vector store.
type Point struct {
	ID      int64
	Vector  []float32
	Payload map[string]any
}

// FieldMatch is an exact equality predicate on one payload field.
type FieldMatch struct {
	Key   string
	Value string
}

// SearchRequest describes a similarity search.
type SearchRequest struct {
	Vector []float32
	Limit  int
	// ScoreThreshold drops hits scoring below it when set.
	ScoreThreshold *float64
	Filter         *FieldMatch
	WithVectors    bool
}

// SearchHit is one result of a similarity search. Score is in [0,1].
type SearchHit struct {
	ID      int64
	Score   float64
	Payload map[string]any
	Vector  []float32
}

// Metadata decodes the hit payload.
func (h SearchHit) Metadata() DocumentMetadata {
	return MetadataFromPayload(h.Payload)
}

// Threshold is a convenience for building SearchRequest.ScoreThreshold.
// Non-positive values mean no threshold.
func Threshold(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// ClampScore keeps a similarity score inside [0,1].
func ClampScore(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
