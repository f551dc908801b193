package health

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jam-carter/OrderOrchestrator/internal/log"
	"github.com/jam-carter/OrderOrchestrator/internal/xerrors"
)

// Liveness reports whether the process is serving. state names the current
// lifecycle phase and is echoed as the status when ok is false.
type Liveness interface {
	Live() (state string, ok bool)
}

// HealthzHandler answers liveness without touching any dependency.
// A nil Liveness is always live.
func HealthzHandler(l Liveness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if l != nil {
			if state, ok := l.Live(); !ok {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": state})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler evaluates all probes on every request.
func ReadyzHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		report, err := agg.Evaluate(ctx)
		if errors.Is(err, ErrAbandoned) {
			log.FromContext(ctx).Debug(ctx, "readiness evaluation abandoned by client")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error"})
			return
		}
		if err != nil {
			log.FromContext(ctx).Error(ctx, xerrors.Wrap(err, "readiness evaluation"), "readiness evaluation failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
			return
		}
		writeJSON(w, report.HTTPStatus(), report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(append(b, '\n'))
}
