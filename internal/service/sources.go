package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cloo-solutions/strom/internal/domain"
)

var (
	quotedSourceNameRe = regexp.MustCompile(`"source_name"\s*:\s*"([^"]+)"`)
	quotedSourceURLRe  = regexp.MustCompile(`"source_url"\s*:\s*"([^"]+)"`)
	bareURLRe          = regexp.MustCompile(`https?://\S+`)
	slugStripRe        = regexp.MustCompile(`[^\w\s-]`)
)

// ExtractSource works out which project a chunk cites. Metadata fields win;
// otherwise the chunk text is scanned for quoted source fields, then for a
// bare URL, and finally a URL is derived from the source name.
func ExtractSource(meta domain.DocumentMetadata) domain.Source {
	name := firstNonEmpty(meta.SourceName, customString(meta.CustomFields, domain.PayloadSourceName))
	url := firstNonEmpty(meta.SourceURL, customString(meta.CustomFields, domain.PayloadSourceURL))

	if name == "" {
		if m := quotedSourceNameRe.FindStringSubmatch(meta.Text); m != nil {
			name = strings.TrimSpace(m[1])
		}
	}

	if url == "" {
		if m := quotedSourceURLRe.FindStringSubmatch(meta.Text); m != nil {
			url = strings.TrimSpace(m[1])
		} else if m := bareURLRe.FindString(meta.Text); m != "" {
			url = m
		} else if name != "" {
			url = SlugURL(name)
		}
	}

	return domain.Source{SourceName: name, SourceURL: url}
}

// SlugURL builds https://{slug}.com from a display name. It returns "" when
// nothing of the name survives ASCII folding.
func SlugURL(name string) string {
	slug := slugify(name)
	if slug == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.com", slug)
}

func slugify(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	folded, _, err := transform.String(t, name)
	if err != nil {
		return ""
	}
	folded = slugStripRe.ReplaceAllString(folded, "")
	folded = strings.ToLower(strings.TrimSpace(folded))
	return strings.ReplaceAll(folded, " ", "-")
}

func customString(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
