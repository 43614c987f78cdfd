package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/conorfennell/kioku/internal/srs"
	"github.com/conorfennell/kioku/internal/storage"
	"github.com/conorfennell/kioku/internal/study"
	"github.com/conorfennell/kioku/internal/sync"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// Server holds the dependencies for the HTTP server.
type Server struct {
	db        *storage.DB
	study     *study.Service
	syncer    *sync.Syncer
	router    *http.ServeMux
	handler   http.Handler
	templates *template.Template
	logger    *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, svc *study.Service, syncer *sync.Syncer, logger *slog.Logger) (*Server, error) {
	tpl, err := template.New("").
		Funcs(template.FuncMap{"markdown": renderMarkdown}).
		ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		db:        db,
		study:     svc,
		syncer:    syncer,
		router:    http.NewServeMux(),
		templates: tpl,
		logger:    logger,
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	s.handler = withLearner(s.router)
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	s.router.Handle("GET /static/", http.StripPrefix("/static/", fileServer))
	s.router.Handle("GET /", fileServer)

	// HTMX fragments
	s.router.HandleFunc("GET /deck", s.handleGetDeck)
	s.router.HandleFunc("GET /review/next", s.handleGetNextReview)
	s.router.HandleFunc("GET /review/answer/{hash}", s.handleShowAnswer)
	s.router.HandleFunc("POST /review/{hash}", s.handlePostReview)
	s.router.HandleFunc("GET /stats", s.handleGetStats)

	// Source management
	s.router.HandleFunc("GET /sources", s.handleGetSources)
	s.router.HandleFunc("POST /sources", s.handlePostSource)
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource)
	s.router.HandleFunc("POST /sync", s.handlePostSync)
	return nil
}

// render executes the named templates into a buffer so a failing template
// never leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, status int, names []string, data any) {
	var buf bytes.Buffer
	for _, name := range names {
		if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
			s.logger.Error("Failed to render template", "template", name, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// handleGetDeck renders the deck view with the due count and progress.
func (s *Server) handleGetDeck(w http.ResponseWriter, r *http.Request) {
	summary, err := s.study.Stats(r.Context(), LearnerID(r.Context()))
	if err != nil {
		s.serverError(w, "Error getting stats for deck view", err)
		return
	}
	s.render(w, http.StatusOK, []string{"deck"}, map[string]any{
		"DueCount":    summary.DueCards,
		"HasDueCards": summary.DueCards > 0,
		"Stats":       summary,
	})
}

// handleGetNextReview renders the front of the next due card, or the deck
// view when nothing is due.
func (s *Server) handleGetNextReview(w http.ResponseWriter, r *http.Request) {
	item, err := s.study.Next(r.Context(), LearnerID(r.Context()))
	if err != nil {
		s.serverError(w, "Error getting next due card", err)
		return
	}
	if item == nil {
		s.handleGetDeck(w, r)
		return
	}
	s.render(w, http.StatusOK, []string{"card_front"}, item)
}

// handleShowAnswer renders the back of a card with the grade buttons.
func (s *Server) handleShowAnswer(w http.ResponseWriter, r *http.Request) {
	card, err := s.db.FindCardByHash(r.Context(), r.PathValue("hash"))
	if err != nil {
		s.serverError(w, "Error finding card", err)
		return
	}
	if card == nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, http.StatusOK, []string{"card_back"}, map[string]any{"Card": card})
}

// handlePostReview grades a card and renders the next one. When the review
// cannot be stored the same card is shown again.
func (s *Server) handlePostReview(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	grade, err := srs.ParseGrade(r.PostFormValue("grade"))
	if err != nil {
		http.Error(w, "Invalid grade", http.StatusBadRequest)
		return
	}

	_, err = s.study.Answer(r.Context(), LearnerID(r.Context()), hash, grade)
	switch {
	case err == nil:
		s.handleGetNextReview(w, r)
	case errors.Is(err, study.ErrCardNotFound):
		http.NotFound(w, r)
	case errors.Is(err, srs.ErrInvalidGrade):
		http.Error(w, "Invalid grade", http.StatusBadRequest)
	default:
		s.logger.Error("Error recording review", "hash", hash, "error", err)
		card, findErr := s.db.FindCardByHash(r.Context(), hash)
		if findErr != nil || card == nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		s.render(w, http.StatusInternalServerError, []string{"card_back"}, map[string]any{
			"Card":  card,
			"Error": "Your answer could not be saved. Please try again.",
		})
	}
}

// handleGetStats serves the learner's progress summary as JSON.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.study.Stats(r.Context(), LearnerID(r.Context()))
	if err != nil {
		s.serverError(w, "Error getting stats", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		s.logger.Warn("Failed to write stats response", "error", err)
	}
}

func (s *Server) sourceList(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	sources, err := s.db.GetAllSources(r.Context())
	if err != nil {
		s.serverError(w, "Error getting sources", err)
		return nil, false
	}
	return map[string]any{"Sources": sources}, true
}

// handleGetSources renders the main sources management page.
func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	data, ok := s.sourceList(w, r)
	if !ok {
		return
	}
	s.render(w, http.StatusOK, []string{"sources"}, data)
}

// handlePostSource adds a new source and re-renders the source list.
func (s *Server) handlePostSource(w http.ResponseWriter, r *http.Request) {
	path := r.PostFormValue("path")
	if path == "" {
		http.Error(w, "Path cannot be empty", http.StatusBadRequest)
		return
	}

	if _, err := sync.AddSource(r.Context(), s.db, path); err != nil {
		s.logger.Error("Error inserting new source", "path", path, "error", err)
		http.Error(w, "Failed to add source", http.StatusInternalServerError)
		return
	}

	data, ok := s.sourceList(w, r)
	if !ok {
		return
	}
	s.render(w, http.StatusOK, []string{"source_list"}, data)
}

// handleDeleteSource deletes a source with its cards and re-renders the list.
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}

	if err := s.db.DeleteSource(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.serverError(w, "Error deleting source", err)
		return
	}

	data, ok := s.sourceList(w, r)
	if !ok {
		return
	}
	s.render(w, http.StatusOK, []string{"source_list"}, data)
}

// handlePostSync runs a sync in the foreground and re-renders the source list
// with the result.
func (s *Server) handlePostSync(w http.ResponseWriter, r *http.Request) {
	report, syncErr := s.syncer.Run(r.Context())
	if syncErr != nil {
		s.logger.Warn("Sync finished with errors", "error", syncErr)
	}

	data, ok := s.sourceList(w, r)
	if !ok {
		return
	}
	data["Report"] = report
	if syncErr != nil {
		data["SyncError"] = syncErr.Error()
	}
	s.render(w, http.StatusOK, []string{"sync_success", "source_list"}, data)
}
