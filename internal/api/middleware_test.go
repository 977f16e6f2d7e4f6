package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-cmp/cmp"
)

// logRouter wires the middleware the way setupRoutes does and records every
// log line as a decoded JSON object.
func logRouter(t *testing.T) (http.Handler, func() []map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(testKey, log))
		r.Route("/api/documents/{docID}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})
		r.Get("/api/jobs/{jobID}", func(w http.ResponseWriter, r *http.Request) {
			jsonError(w, "boom", http.StatusInternalServerError)
		})
	})

	lines := func() []map[string]any {
		var out []map[string]any
		sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
		for sc.Scan() {
			var m map[string]any
			if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
				t.Fatalf("log line %q: %v", sc.Text(), err)
			}
			out = append(out, m)
		}
		return out
	}
	return r, lines
}

func serve(h http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestLogger_RouteAndParams(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		level string
		want  map[string]any
	}{
		{
			name:  "document",
			path:  "/api/documents/calc/",
			level: "INFO",
			want: map[string]any{
				"route":  "/api/documents/{docID}/",
				"doc_id": "calc",
				"status": float64(http.StatusNoContent),
			},
		},
		{
			name:  "job",
			path:  "/api/jobs/j-42",
			level: "ERROR",
			want: map[string]any{
				"route":  "/api/jobs/{jobID}",
				"job_id": "j-42",
				"status": float64(http.StatusInternalServerError),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, lines := logRouter(t)
			serve(h, http.MethodGet, tt.path, "Bearer "+testKey)

			logs := lines()
			if len(logs) != 1 {
				t.Fatalf("got %d log lines, want 1: %v", len(logs), logs)
			}
			entry := logs[0]
			if entry["msg"] != "request" || entry["level"] != tt.level {
				t.Errorf("msg/level = %v/%v", entry["msg"], entry["level"])
			}
			if id, _ := entry["req_id"].(string); id == "" {
				t.Error("req_id missing")
			}
			got := make(map[string]any, len(tt.want))
			for k := range tt.want {
				got[k] = entry[k]
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("log attrs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAuthMiddleware_LogsRejection(t *testing.T) {
	tests := []struct {
		name, header, reason string
	}{
		{"missing", "", "missing authorization"},
		{"wrong key", "Bearer nope", "invalid api key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, lines := logRouter(t)
			rec := serve(h, http.MethodGet, "/api/documents/calc/", tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["error"] != tt.reason {
				t.Errorf("body error = %q, want %q", body["error"], tt.reason)
			}

			logs := lines()
			if len(logs) != 2 {
				t.Fatalf("got %d log lines, want rejection and request: %v", len(logs), logs)
			}
			rejected, request := logs[0], logs[1]
			if rejected["msg"] != "request rejected" || rejected["reason"] != tt.reason {
				t.Errorf("rejection entry = %v", rejected)
			}
			if rejected["req_id"] == "" || rejected["req_id"] != request["req_id"] {
				t.Errorf("req_id %v does not match request entry %v", rejected["req_id"], request["req_id"])
			}
			if request["status"] != float64(http.StatusUnauthorized) {
				t.Errorf("request status = %v", request["status"])
			}
		})
	}
}
