package middleware

import (
	"mime"
	"net/http"
)

// BodyLimits caps request bodies by content type.
type BodyLimits struct {
	JSON      int64
	Form      int64
	Multipart int64
}

// LimitBody wraps request bodies in http.MaxBytesReader according to their content type.
// Bodies of other types get the JSON limit.
func LimitBody(limits BodyLimits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				limit := limits.JSON
				mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
				switch mediaType {
				case "application/x-www-form-urlencoded":
					limit = limits.Form
				case "multipart/form-data":
					limit = limits.Multipart
				}
				if limit > 0 {
					r.Body = http.MaxBytesReader(w, r.Body, limit)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
