package middleware

import (
	"mime"
	"net/http"

	"github.com/cloo-solutions/strom/internal/api"
)

// BodyLimits caps request bodies by kind. Multipart uploads carry whole
// documents; everything else is a small JSON body.
type BodyLimits struct {
	Default   int64
	Multipart int64
}

func (l BodyLimits) forRequest(r *http.Request) int64 {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && mediaType == "multipart/form-data" && l.Multipart > 0 {
		return l.Multipart
	}
	return l.Default
}

// MaxBodyBytes rejects bodies whose declared length exceeds the limit for
// their kind and caps the rest while they are read.
func MaxBodyBytes(limits BodyLimits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := limits.forRequest(r)
			if limit <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
