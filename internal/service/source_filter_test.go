package service

import (
	"testing"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRestrict(t *testing.T) {
	solar := domain.Source{SourceName: "Solar Farm", SourceURL: "https://solar.example"}
	wind := domain.Source{SourceName: "Wind Park", SourceURL: "https://wind.example"}
	hydro := domain.Source{SourceName: "Hydro Dam", SourceURL: "https://hydro.example"}
	available := domain.NewSourceSet(solar, wind, hydro)

	tests := []struct {
		name    string
		sources []domain.Source
		want    []domain.Source
	}{
		{"keeps model order", []domain.Source{hydro, solar}, []domain.Source{hydro, solar}},
		{"drops fabricated", []domain.Source{{SourceName: "Made Up"}, wind}, []domain.Source{wind}},
		{"requires exact structure", []domain.Source{{SourceName: "Solar Farm"}}, []domain.Source{}},
		{"collapses repeats", []domain.Source{wind, solar, wind}, []domain.Source{wind, solar}},
		{"empty", nil, []domain.Source{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Restrict(domain.StructuredAnswer{Sources: tt.sources}, available)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRestrict_NothingAvailable(t *testing.T) {
	answer := domain.StructuredAnswer{Sources: []domain.Source{{SourceName: "Solar Farm"}}}

	assert.Empty(t, Restrict(answer, domain.SourceSet{}))
}
