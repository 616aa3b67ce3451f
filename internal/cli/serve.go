package cli

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-dev/wheelhouse/pkg/deps"
	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
)

// newServeCmd creates the "serve" command: dependency resolution as a small
// JSON API.
func newServeCmd(cfg *Config) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve dependency resolution over HTTP",
		Long: `Start an HTTP server exposing resolution as JSON:

  GET /api/deps/{package}     resolve a package's dependency graph
  GET /healthz                liveness probe

Query parameters for /api/deps: python_version, specifiers (e.g. ">=2.0"),
extras (comma separated), include_extras, refresh.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			r := chi.NewRouter()
			r.Use(middleware.RealIP)
			r.Use(middleware.Recoverer)
			r.Use(middleware.Timeout(5 * time.Minute))

			r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			r.Get("/api/deps/{package}", handleDeps(cfg))

			srv := &http.Server{
				Addr:              addr,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Infof("listening on %s", addr)
			go func() {
				<-ctx.Done()
				srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8337", "listen address")
	return cmd
}

func handleDeps(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		requirement := chi.URLParam(r, "package")
		if extras := q.Get("extras"); extras != "" {
			requirement += "[" + extras + "]"
		}
		requirement += q.Get("specifiers")

		opts := deps.Options{
			PythonVersion: q.Get("python_version"),
			IncludeExtras: boolParam(q.Get("include_extras")),
			Refresh:       boolParam(q.Get("refresh")),
		}

		res, err := newResolver(r.Context(), cfg, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		defer res.Close()

		root, err := res.walker.Walk(r.Context(), requirement)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deps.Export(root))
	}
}

func boolParam(s string) bool {
	switch s {
	case "1", "true", "yes":
		return true
	}
	return false
}

// writeError maps resolution error codes onto HTTP statuses and emits a
// small JSON body with the code and message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodePackageNotFound, errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidRequirement, errors.ErrCodeInvalidConfig:
		status = http.StatusBadRequest
	case errors.ErrCodeNoMatchingVersion, errors.ErrCodeIncompatiblePython,
		errors.ErrCodeNoArtifact, errors.ErrCodeExcludedByMarkers,
		errors.ErrCodeUnsupportedMarker, errors.ErrCodeUnsupportedOperator:
		status = http.StatusUnprocessableEntity
	case errors.ErrCodeNetwork, errors.ErrCodeTruncatedRead:
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":  string(errors.GetCode(err)),
		"error": err.Error(),
	})
}
