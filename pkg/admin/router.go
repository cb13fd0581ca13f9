package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/store"
	syncpkg "github.com/noodlebreak/apache-bugzilla-fetcher/pkg/sync"
)

// Router builds the admin API router. worker may be nil, in which case the
// sync trigger endpoint responds 503.
func Router(s *store.Store, runs *syncpkg.RunStore, worker *syncpkg.Worker) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PATCH", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/bugs", ListBugsHandler(s))
		r.Get("/bugs/{bzId}", GetBugHandler(s))

		mountNamed[store.Classification](r, "/classifications", s)
		mountNamed[store.Flag](r, "/flags", s)
		mountNamed[store.Group](r, "/groups", s)
		mountNamed[store.Keyword](r, "/keywords", s)
		mountNamed[store.OpSys](r, "/op-sys", s)
		mountNamed[store.Platform](r, "/platforms", s)
		mountNamed[store.Priority](r, "/priorities", s)
		mountNamed[store.Product](r, "/products", s)
		mountNamed[store.Severity](r, "/severities", s)
		mountNamed[store.Status](r, "/statuses", s)
		mountNamed[store.TargetMilestone](r, "/target-milestones", s)
		mountNamed[store.Alias](r, "/aliases", s)

		r.Get("/components", ListComponentsHandler(s))
		r.Get("/components/{id}", GetComponentHandler(s))

		r.Get("/users", ListUsersHandler(s))
		r.Get("/users/{id}", GetUserHandler(s))

		r.Get("/sync/runs", ListRunsHandler(runs))
		r.Get("/sync/runs/{runId}", GetRunHandler(runs))
		if worker != nil {
			r.Post("/sync/runs:trigger", TriggerSyncHandler(worker))
		} else {
			r.Post("/sync/runs:trigger", func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "sync worker not running")
			})
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

func mountNamed[T store.Named](r chi.Router, path string, s *store.Store) {
	r.Get(path, listNamedHandler[T](s))
	r.Get(path+"/{id}", getNamedHandler[T](s))
	r.Patch(path+"/{id}", renameNamedHandler[T](s))
}
