package shield

import "net/http"

// MaxBody returns middleware that caps the request body size for every
// request. Oversized bodies fail inside the handler's read with a
// MaxBytesError, which net/http turns into 413.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
