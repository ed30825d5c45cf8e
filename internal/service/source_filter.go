package service

import "github.com/cloo-solutions/strom/internal/domain"

// Restrict keeps the answer's citations that were actually retrieved, in the
// order the model gave them. Repeated citations keep their first position.
func Restrict(answer domain.StructuredAnswer, available domain.SourceSet) []domain.Source {
	out := make([]domain.Source, 0, len(answer.Sources))
	seen := domain.NewSourceSet()
	for _, s := range answer.Sources {
		if !available.Contains(s) {
			continue
		}
		if seen.Add(s) {
			out = append(out, s)
		}
	}
	return out
}
