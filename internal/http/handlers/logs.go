package handlers

import (
	"net/http"
	"strconv"

	"govconsole/internal/logger"
)

// ListLogs returns buffered log entries, oldest first. ?after=<uid> skips
// entries already seen.
func ListLogs(ring *logger.Ring) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var after uint64
		if v := r.URL.Query().Get("after"); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				writeErrorCode(w, http.StatusBadRequest, "validation", "after must be a log uid")
				return
			}
			after = n
		}

		entries := ring.Entries()
		out := make([]logger.Entry, 0, len(entries))
		for _, e := range entries {
			if e.UID > after {
				out = append(out, e)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": out})
	}
}

// ClearLogs empties the buffer
func ClearLogs(ring *logger.Ring) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ring.Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}
