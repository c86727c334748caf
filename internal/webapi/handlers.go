package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// DefaultOrigins are the browser dev-server origins allowed by default.
var DefaultOrigins = []string{
	"http://localhost:5173",
	"https://localhost:5173",
	"http://localhost:5174",
	"https://localhost:5174",
}

// maxUploadMemory is the multipart form size kept in memory.
const maxUploadMemory = 32 << 20

// Options tunes the simulated executor.
type Options struct {
	// Interval is the delay between stream frames.
	Interval time.Duration
	// Origins are the browser origins allowed for CORS and websocket upgrades.
	Origins []string
	Logger  *slog.Logger
}

// Handlers holds the HTTP handler methods for the simulated executor.
type Handlers struct {
	store    TaskStore
	interval time.Duration
	origins  []string
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers with the given store.
func NewHandlers(store TaskStore, opts Options) *Handlers {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handlers{
		store:    store,
		interval: opts.Interval,
		origins:  opts.Origins,
		logger:   opts.Logger,
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleCreate returns a handler that accepts a task of the given kind.
func (h *Handlers) HandleCreate(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if msg := validatePayload(kind, payload); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		task, err := h.store.Create(kind, payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.logger.Info("task created", "kind", kind, "task_id", task.ID)
		writeJSON(w, http.StatusOK, CreateResponse{TaskID: task.ID})
	}
}

// validatePayload returns a message describing what is wrong, or "".
func validatePayload(kind string, p map[string]any) string {
	switch kind {
	case "scrape":
		if str(p, "playlist_url") == "" {
			return "playlist_url is required"
		}
	case "split":
		if str(p, "audio_folder") == "" && str(p, "csv_filename") == "" {
			return "Either csv_filename or audio_folder must be provided"
		}
		switch str(p, "splitting_method") {
		case "", "vad", "semantic":
		default:
			return "splitting_method must be vad or semantic"
		}
	case "transcribe":
		if str(p, "output_csv_name") == "" {
			return "output_csv_name is required"
		}
		switch str(p, "method") {
		case "", "local":
		case "elevenlabs":
			if str(p, "api_key") == "" {
				return "api_key is required for elevenlabs"
			}
		default:
			return "method must be local or elevenlabs"
		}
	}
	return ""
}

// HandleListCSVs returns the dataset CSV names.
func (h *Handlers) HandleListCSVs(w http.ResponseWriter, _ *http.Request) {
	names, err := h.store.ListCSVs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// HandleUpload accepts a multipart "file" and creates an upload task for it.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close() //nolint:errcheck

	n, err := io.Copy(io.Discard, f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.store.Create("upload", map[string]any{"filename": hdr.Filename, "size": n})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info("upload received", "task_id", task.ID, "filename", hdr.Filename, "bytes", n)
	writeJSON(w, http.StatusOK, CreateResponse{TaskID: task.ID})
}

// HandleStream upgrades to a websocket and plays the task's script. The
// socket is closed after a completed frame and left open after an error
// frame until the client goes away.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originHosts(h.origins)})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "task_id", id, "error", err)
		return
	}
	defer c.CloseNow() //nolint:errcheck

	// Incoming messages are ignored; ctx ends when the client closes.
	ctx := c.CloseRead(r.Context())
	logger := h.logger.With("task_id", id)

	task, err := h.store.Get(id)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, ErrTaskNotFound) {
			msg = fmt.Sprintf("task %s not found", id)
		}
		_ = wsjson.Write(ctx, c, Frame{Status: "error", Message: msg})
		<-ctx.Done()
		return
	}

	frames := Script(task)
	for i, f := range frames {
		if i > 0 && h.interval > 0 {
			select {
			case <-ctx.Done():
				logger.Debug("client left mid-stream")
				return
			case <-time.After(h.interval):
			}
		}
		if err := wsjson.Write(ctx, c, f); err != nil {
			logger.Debug("writing frame", "error", err)
			return
		}
	}

	last := frames[len(frames)-1]
	if last.Status != "completed" {
		<-ctx.Done()
		return
	}
	if name, _ := last.Result["csv_filename"].(string); name != "" {
		_ = h.store.AddCSV(name)
	}
	logger.Info("task completed", "kind", task.Kind)
	_ = c.Close(websocket.StatusNormalClosure, "")
}

// originHosts converts origins to the host patterns websocket.Accept expects.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		hosts = append(hosts, o)
	}
	return hosts
}

// RegisterRoutes registers all executor routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, store TaskStore, opts Options) {
	h := NewHandlers(store, opts)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /files/csvs", h.HandleListCSVs)
	mux.HandleFunc("POST /tasks/scrape", h.HandleCreate("scrape"))
	mux.HandleFunc("POST /tasks/split", h.HandleCreate("split"))
	mux.HandleFunc("POST /tasks/transcribe", h.HandleCreate("transcribe"))
	mux.HandleFunc("POST /upload", h.HandleUpload)
	mux.HandleFunc("GET /ws/{id}", h.HandleStream)
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
