package response

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 body, used for routing failures that never reach a
// handler.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	TraceID string `json:"trace_id,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (p *Problem) Render(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func ErrorProblem(w http.ResponseWriter, r *http.Request, code, detail string) {
	status := MapStatus(code)
	prob := &Problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  traceID(r),
		Code:     code,
	}
	prob.Render(w)
}

// NotFound and MethodNotAllowed are router fallbacks.
func NotFound(w http.ResponseWriter, r *http.Request) {
	ErrorProblem(w, r, ErrNotFound, "no route for "+r.Method+" "+r.URL.Path)
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	ErrorProblem(w, r, ErrMethodNotAllow, r.Method+" is not supported on "+r.URL.Path)
}
