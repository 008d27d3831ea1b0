package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/streed/notesai/internal/constants"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/models"
	"github.com/streed/notesai/internal/services"
)

type nameRequest struct {
	Name string `json:"name"`
}

type noteTagRequest struct {
	Tag  int `json:"tag"`
	Note int `json:"note"`
}

// updateNoteRequest keeps folder raw so an explicit null can clear it.
type updateNoteRequest struct {
	Title    *string         `json:"title"`
	Content  *string         `json:"content"`
	Folder   json.RawMessage `json:"folder"`
	Favorite *bool           `json:"favorite"`
}

// noteResponse is a note plus the outcome of indexing it on this write.
type noteResponse struct {
	*models.Note
	IndexError string `json:"index_error,omitempty"`
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	vec, err := s.svc.DB.Ping(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("database unavailable: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"sqlite_vec":         vec,
		"embedding_provider": s.svc.Embedder.ProviderID(),
	})
}

func (s *APIServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.Users.Get(r.Context(), currentUser(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *APIServer) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.svc.Folders.List(r.Context(), currentUser(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, folders)
}

func (s *APIServer) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	folder, err := s.svc.Folders.Create(r.Context(), currentUser(r), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, folder)
}

func (s *APIServer) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseIntParam(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, interrors.ErrInvalidFolderID)
		return
	}
	if err := s.svc.Folders.Delete(r.Context(), currentUser(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Folder deleted", "id": id})
}

func (s *APIServer) handleListNotes(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", constants.DefaultListLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts := models.ListOptions{
		Limit:         limit,
		Offset:        offset,
		FavoritesOnly: r.URL.Query().Get("favorite") == constants.BoolTrue,
	}
	if r.URL.Query().Get("folder") != "" {
		folder, err := queryInt(r, "folder", 0)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		opts.FolderID = &folder
	}

	notes, err := s.svc.Notes.List(r.Context(), currentUser(r), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, notes)
}

func (s *APIServer) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req services.NoteInput
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	note, err := s.svc.Notes.Create(r.Context(), currentUser(r), req)
	s.writeNote(w, r, http.StatusCreated, note, err)
}

func (s *APIServer) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseIntParam(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, interrors.ErrInvalidNoteID)
		return
	}
	note, err := s.svc.Notes.Get(r.Context(), currentUser(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

func (s *APIServer) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseIntParam(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, interrors.ErrInvalidNoteID)
		return
	}
	var req updateNoteRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	upd := services.NoteUpdate{Title: req.Title, Content: req.Content, Favorite: req.Favorite}
	if len(req.Folder) > 0 {
		if bytes.Equal(bytes.TrimSpace(req.Folder), []byte("null")) {
			upd.ClearFolder = true
		} else {
			var folder int
			if err := json.Unmarshal(req.Folder, &folder); err != nil {
				s.fail(w, r, fmt.Errorf("%w: folder must be an id or null", interrors.ErrValidation))
				return
			}
			upd.FolderID = &folder
		}
	}

	note, err := s.svc.Notes.Update(r.Context(), currentUser(r), id, upd)
	s.writeNote(w, r, http.StatusOK, note, err)
}

// writeNote reports a create or update. A failed embed still counts as a
// successful save.
func (s *APIServer) writeNote(w http.ResponseWriter, r *http.Request, code int, note *models.Note, err error) {
	var indexErr *services.IndexError
	if err != nil && !errors.As(err, &indexErr) {
		s.fail(w, r, err)
		return
	}
	resp := noteResponse{Note: note}
	if indexErr != nil {
		resp.IndexError = indexErr.Error()
	}
	s.writeJSON(w, code, resp)
}

func (s *APIServer) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseIntParam(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, interrors.ErrInvalidNoteID)
		return
	}
	if err := s.svc.Notes.Delete(r.Context(), currentUser(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Note deleted", "id": id})
}

func (s *APIServer) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseIntParam(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, interrors.ErrInvalidNoteID)
		return
	}
	fav, err := s.svc.Notes.ToggleFavorite(r.Context(), currentUser(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"favorite": fav})
}

func (s *APIServer) handleRestoreNote(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseIntParam(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, interrors.ErrInvalidNoteID)
		return
	}
	note, err := s.svc.Notes.Restore(r.Context(), currentUser(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

func (s *APIServer) handleNoteVersions(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseIntParam(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, interrors.ErrInvalidNoteID)
		return
	}
	versions, err := s.svc.Notes.Versions(r.Context(), currentUser(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, versions)
}

func (s *APIServer) handleSummarizeNote(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseIntParam(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, interrors.ErrInvalidNoteID)
		return
	}
	task, err := s.svc.Notes.Summarize(r.Context(), currentUser(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Summarization started",
		"task_id": task.ID,
	})
}

func (s *APIServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.Tasks.Get(r.Context(), currentUser(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *APIServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, interrors.ErrEmptyQuery)
		return
	}
	limit, err := queryInt(r, "limit", constants.DefaultSearchLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if limit > constants.MaxSearchLimit {
		limit = constants.MaxSearchLimit
	}

	results, err := s.svc.Search.Search(r.Context(), currentUser(r), query, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *APIServer) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.svc.Tags.List(r.Context(), currentUser(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tags)
}

func (s *APIServer) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tag, err := s.svc.Tags.Create(r.Context(), currentUser(r), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tag)
}

func (s *APIServer) handleListNoteTags(w http.ResponseWriter, r *http.Request) {
	links, err := s.svc.Tags.ListAssignments(r.Context(), currentUser(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, links)
}

func (s *APIServer) handleAssignNoteTag(w http.ResponseWriter, r *http.Request) {
	var req noteTagRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	link, err := s.svc.Tags.Assign(r.Context(), currentUser(r), req.Tag, req.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, link)
}
