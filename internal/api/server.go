package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/streed/notesai/internal/auth"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/logger"
	"github.com/streed/notesai/internal/services"
)

type APIServer struct {
	svc    *services.Services
	auth   *auth.Authenticator
	server *http.Server
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func NewAPIServer(svc *services.Services, authn *auth.Authenticator) *APIServer {
	return &APIServer{svc: svc, auth: authn}
}

// Handler builds the full HTTP handler: routes, auth, CORS and request logging.
func (s *APIServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.instrument)

	router.Handle("/metrics", s.svc.Metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	protected := api.NewRoute().Subrouter()
	protected.Use(s.auth.Middleware)

	protected.HandleFunc("/me/", s.handleMe).Methods("GET")

	// Folders
	protected.HandleFunc("/folders/", s.handleListFolders).Methods("GET")
	protected.HandleFunc("/folders/", s.handleCreateFolder).Methods("POST")
	protected.HandleFunc("/folders/{id:[0-9]+}/delete/", s.handleDeleteFolder).Methods("DELETE")

	// Notes
	protected.HandleFunc("/notes/", s.handleListNotes).Methods("GET")
	protected.HandleFunc("/notes/", s.handleCreateNote).Methods("POST")
	protected.HandleFunc("/notes/{id:[0-9]+}/", s.handleGetNote).Methods("GET")
	protected.HandleFunc("/notes/{id:[0-9]+}/", s.handleUpdateNote).Methods("PUT", "PATCH")
	protected.HandleFunc("/notes/{id:[0-9]+}/", s.handleDeleteNote).Methods("DELETE")
	protected.HandleFunc("/notes/{id:[0-9]+}/favorite/", s.handleToggleFavorite).Methods("POST")
	protected.HandleFunc("/notes/{id:[0-9]+}/restore/", s.handleRestoreNote).Methods("POST")
	protected.HandleFunc("/notes/{id:[0-9]+}/versions/", s.handleNoteVersions).Methods("GET")
	protected.HandleFunc("/notes/{id:[0-9]+}/summarize/", s.handleSummarizeNote).Methods("POST")

	protected.HandleFunc("/tasks/{id}/", s.handleGetTask).Methods("GET")
	protected.HandleFunc("/search/", s.handleSearch).Methods("GET")

	// Tags
	protected.HandleFunc("/tags/", s.handleListTags).Methods("GET")
	protected.HandleFunc("/tags/", s.handleCreateTag).Methods("POST")
	protected.HandleFunc("/note-tag/", s.handleListNoteTags).Methods("GET")
	protected.HandleFunc("/note-tag/", s.handleAssignNoteTag).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           86400, // 24 hours
	})

	return c.Handler(router)
}

func (s *APIServer) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Starting HTTP API server on %s", addr)
	return s.server.ListenAndServe()
}

func (s *APIServer) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *APIServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.LogRequest(r.Method, r.URL.Path, r.RemoteAddr)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.LogResponse(r.Method, r.URL.Path, rec.status, time.Since(start).String())
		s.svc.Metrics.HTTPRequest(r.Method, rec.status)
	})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: statusCode < 400,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode JSON response: %v", err)
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, statusCode int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error:   err.Error(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode JSON response: %v", err)
	}
}

// fail maps err onto a status code and writes it. Unexpected errors are
// logged and reported without detail.
func (s *APIServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
		err = errors.New("internal server error")
	}
	s.writeError(w, code, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, interrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, interrors.ErrNoteNotFound),
		errors.Is(err, interrors.ErrFolderNotFound),
		errors.Is(err, interrors.ErrTagNotFound),
		errors.Is(err, interrors.ErrTaskNotFound),
		errors.Is(err, interrors.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, interrors.ErrProviderMismatch):
		return http.StatusConflict
	case errors.Is(err, interrors.ErrValidation),
		errors.Is(err, interrors.ErrEmptyContent),
		errors.Is(err, interrors.ErrEmptyQuery),
		errors.Is(err, interrors.ErrInvalidNoteID),
		errors.Is(err, interrors.ErrInvalidFolderID),
		errors.Is(err, interrors.ErrDuplicateTag),
		errors.Is(err, interrors.ErrDuplicateNoteTag),
		errors.Is(err, interrors.ErrSummarizationDisabled):
		return http.StatusBadRequest
	case errors.Is(err, interrors.ErrProvider),
		errors.Is(err, interrors.ErrSummarizer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *APIServer) parseIntParam(r *http.Request, param string) (int, error) {
	vars := mux.Vars(r)
	str, exists := vars[param]
	if !exists {
		return 0, fmt.Errorf("missing parameter: %s", param)
	}
	return strconv.Atoi(str)
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", interrors.ErrValidation, name)
	}
	return n, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", interrors.ErrValidation, err)
	}
	return nil
}

// currentUser is only called behind the auth middleware.
func currentUser(r *http.Request) int {
	id, _ := auth.UserID(r.Context())
	return id
}
