package middlewarex

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RequestLogger writes one access line per request to log
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return chimw.RequestLogger(&zerologFormatter{log: log})
}

type zerologFormatter struct {
	log zerolog.Logger
}

func (f *zerologFormatter) NewLogEntry(r *http.Request) chimw.LogEntry {
	l := f.log.With().
		Str("request_id", chimw.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote", r.RemoteAddr).
		Logger()
	return &zerologEntry{log: l}
}

type zerologEntry struct {
	log zerolog.Logger
}

func (e *zerologEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	ev := e.log.Info()
	if status >= http.StatusInternalServerError {
		ev = e.log.Error()
	}
	ev.Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("request")
}

func (e *zerologEntry) Panic(v interface{}, stack []byte) {
	e.log.Error().
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("request panicked")
}
