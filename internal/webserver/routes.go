package webserver

import (
	"net/http"

	"github.com/spboyer/taskwatch/internal/webapi"
)

// registerRoutes sets up the executor API on the given mux.
func registerRoutes(mux *http.ServeMux, cfg Config) {
	webapi.RegisterRoutes(mux, cfg.Store, webapi.Options{
		Interval: cfg.Interval,
		Origins:  cfg.Origins,
		Logger:   cfg.Logger,
	})
	mux.HandleFunc("/", handleNotFound)
}

// handleNotFound returns a JSON 404 for unknown paths.
func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"not found","code":404}` + "\n")) //nolint:errcheck
}
