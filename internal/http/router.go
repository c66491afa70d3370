package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router wraps the standard library http.ServeMux.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterAPIRoutes wires the ingestion and console endpoints.
func (r *Router) RegisterAPIRoutes(
	in *IngestHandler,
	ci *CheckInHandler,
	vf *VerifyHandler,
	pr *ProgressHandler,
	dev *DeviceHandler,
	health *HealthHandler,
) {
	r.Handle("/api/v1/ingest", method(http.MethodPost, in.Ingest))

	r.Handle("/api/v1/checkins", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			ci.Create(w, req)
		case http.MethodGet:
			ci.List(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/v1/checkins/export", method(http.MethodGet, ci.Export))

	r.Handle("/api/v1/rfid/verify", method(http.MethodPost, vf.Verify))

	// team progress: /api/v1/teams/{id}/progress
	r.Handle("/api/v1/teams/", method(http.MethodGet, func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/teams/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "progress" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		pr.TeamProgress(w, req, parts[0])
	}))
	r.Handle("/api/v1/progress", method(http.MethodGet, pr.Scoreboard))

	r.Handle("/api/v1/devices", method(http.MethodGet, dev.List))
	r.Handle("/api/v1/messages", method(http.MethodGet, dev.Messages))

	r.Handle("/api/v1/health", method(http.MethodGet, health.Health))
}
