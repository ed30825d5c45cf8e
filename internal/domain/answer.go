package domain

// FallbackResponse is returned when no valid answer could be produced.
const FallbackResponse = "I'm sorry, I couldn't process your request right now. Please try again later."

// AssembledContext is the retrieval output handed to generation.
type AssembledContext struct {
	ContextTexts     []string
	AvailableSources SourceSet
}

// NewAssembledContext returns an empty context.
func NewAssembledContext() *AssembledContext {
	return &AssembledContext{
		ContextTexts:     []string{},
		AvailableSources: NewSourceSet(),
	}
}

// IsEmpty reports whether nothing was retrieved.
func (c *AssembledContext) IsEmpty() bool {
	return c == nil || (len(c.ContextTexts) == 0 && c.AvailableSources.Len() == 0)
}

// StructuredAnswer is the answer contract the language model must satisfy.
type StructuredAnswer struct {
	Response         []string `json:"response"`
	IsGreeting       bool     `json:"is_greeting"`
	ExistsInData     bool     `json:"exists_in_data"`
	ExistsElsewhere  bool     `json:"exists_elsewhere"`
	RelevantProjects []string `json:"relevant_projects"`
	Sources          []Source `json:"sources"`
}

// FallbackAnswer is the deterministic answer used when generation fails.
func FallbackAnswer() StructuredAnswer {
	return StructuredAnswer{
		Response:         []string{FallbackResponse},
		RelevantProjects: []string{},
		Sources:          []Source{},
	}
}

// IsFallback reports whether a is the fallback answer.
func (a StructuredAnswer) IsFallback() bool {
	return len(a.Response) == 1 && a.Response[0] == FallbackResponse &&
		len(a.RelevantProjects) == 0 && len(a.Sources) == 0
}
