package http

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/correlation"
	"conversation-analyzer/pkg/errors"
)

// recoverPanics turns a handler panic into a 500 response and logs the stack.
// http.ErrAbortHandler is re-raised so the server can abort the connection.
func recoverPanics(logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			correlation.Logger(r.Context(), logger).WithFields(logrus.Fields{
				"component":   "http",
				"path":        r.URL.Path,
				"panic_value": rec,
				"stack_trace": string(debug.Stack()),
			}).Error("Panic recovered")

			errors.WriteError(w, errors.NewInternalError(fmt.Sprintf("panic serving %s", r.URL.Path)))
		}()
		next.ServeHTTP(w, r)
	})
}
