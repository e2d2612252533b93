// Package adminhttp implements the admin HTTP surface: layer and
// archetype CRUD, manual spawn, snapshot save/load, health, and stats. It
// is a thin adapter over core.World: snapshot documents are encoded by
// core.MarshalSnapshot and persisted through a SnapshotStore.
package adminhttp

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/WorldsMadeReal/world-host/core"
)

// Server holds the dependencies every admin handler needs.
type Server struct {
	world      *core.World
	snapshotIO SnapshotStore
	log        *logrus.Logger
}

// NewServer builds an admin Server bound to world.
func NewServer(world *core.World, snapshotIO SnapshotStore, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{world: world, snapshotIO: snapshotIO, log: log}
}

// Router builds the mux.Router exposing every admin endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log))

	r.HandleFunc("/api/layers", s.listLayers).Methods(http.MethodGet)
	r.HandleFunc("/api/layers", s.createLayer).Methods(http.MethodPost)
	r.HandleFunc("/api/archetypes", s.listArchetypes).Methods(http.MethodGet)
	r.HandleFunc("/api/archetypes", s.defineArchetype).Methods(http.MethodPost)
	r.HandleFunc("/api/spawn", s.spawnEntity).Methods(http.MethodPost)
	r.HandleFunc("/api/snapshot/save", s.saveSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/api/snapshot/load", s.loadSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/api/stats", s.stats).Methods(http.MethodGet)
	r.HandleFunc("/api/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", s.world.Metrics.Handler()).Methods(http.MethodGet)

	return r
}

func loggingMiddleware(log *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Debug("admin request")
			next.ServeHTTP(w, r)
		})
	}
}

// ListenAndServe starts the admin HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.log.WithField("addr", addr).Info("admin server listening")
	return http.ListenAndServe(addr, s.Router())
}
