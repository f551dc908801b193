package health

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Report is the aggregate of one readiness evaluation.
type Report struct {
	Status       Status
	Dependencies []Result // registration order
}

// Summarize reduces results to a report. The overall status is Up iff every
// result is Up; an empty slice is vacuously Up.
func Summarize(results []Result) Report {
	r := Report{Status: Up, Dependencies: append([]Result(nil), results...)}
	for _, res := range results {
		if res.Status != Up {
			r.Status = Down
		}
	}
	return r
}

// HTTPStatus maps the overall status to 200 or 503.
func (r Report) HTTPStatus() int {
	if r.Status == Up {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// overall verdict wording on the wire
func (s Status) word() string {
	if s == Up {
		return "ok"
	}
	return "error"
}

// MarshalJSON renders {"status":"ok"|"error","<name>":"up"|"down",...} with
// dependency keys in registration order. Details are not exposed.
func (r Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"status":`)
	if err := writeString(&buf, r.Status.word()); err != nil {
		return nil, err
	}
	for _, d := range r.Dependencies {
		buf.WriteByte(',')
		if err := writeString(&buf, d.Name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeString(&buf, d.Status.String()); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
