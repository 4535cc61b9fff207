// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/api/respond"
	"github.com/paul-bouzian/saycal/internal/model"
)

// New returns middleware that logs a recovered panic with its stack and
// answers with the internal error body. http.ErrAbortHandler is re-raised so
// the server can abort the connection.
func New(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().
					Str("panic", fmt.Sprint(rec)).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("stack", string(debug.Stack())).
					Msg("panic recovered")
				lang := respond.Language(r.Header.Get("Accept-Language"))
				respond.WriteJSON(w, http.StatusInternalServerError, respond.ErrorResponse{
					Error:   http.StatusText(http.StatusInternalServerError),
					Code:    http.StatusInternalServerError,
					Message: respond.Message(model.ReasonInternal, lang),
					Reason:  model.ReasonInternal,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
