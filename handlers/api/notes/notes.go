package notes

import (
	"encoding/json"
	"errors"
	"net/http"

	"realtime-notes/core"
	"realtime-notes/middleware"
	"realtime-notes/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type notePayload struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type sharePayload struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type listResponse struct {
	Owned  []*core.Note `json:"owned"`
	Shared []*core.Note `json:"shared"`
}

// renderError maps the core error taxonomy onto HTTP status codes.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "not found"})
	case errors.Is(err, core.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, map[string]string{"error": "forbidden"})
	case errors.Is(err, core.ErrUnauthorized):
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "unauthorized"})
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "internal error"})
	}
}

// loadNote fetches a note and writes the 404 response itself when the note is
// missing or soft-deleted.
func loadNote(w http.ResponseWriter, r *http.Request, store stores.Store) *core.Note {
	id := chi.URLParam(r, "id")
	note, err := store.GetNote(r.Context(), id)
	if err != nil || note.Deleted {
		renderError(w, r, core.ErrNotFound)
		return nil
	}
	return note
}

func HandleCreate(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.Claims(r.Context())
		if !ok {
			renderError(w, r, core.ErrUnauthorized)
			return
		}

		var req notePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "invalid body"})
			return
		}

		note := &core.Note{Title: "Untitled", Owner: claims.Subject}
		if req.Title != nil {
			note.Title = *req.Title
		}
		if req.Content != nil {
			note.Content = *req.Content
		}

		if _, err := store.CreateNote(r.Context(), note); err != nil {
			logrus.WithError(err).Error("Failed to create note")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "failed to create note"})
			return
		}

		render.JSON(w, r, note)
	}
}

func HandleList(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.Claims(r.Context())
		if !ok {
			renderError(w, r, core.ErrUnauthorized)
			return
		}

		owned, shared, err := store.ListNotes(r.Context(), claims.Subject)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "subject": claims.Subject}).Error("Failed to list notes")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "failed to list notes"})
			return
		}

		// Return empty slices instead of null for clients.
		if owned == nil {
			owned = []*core.Note{}
		}
		if shared == nil {
			shared = []*core.Note{}
		}
		render.JSON(w, r, listResponse{Owned: owned, Shared: shared})
	}
}

func HandleGet(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.Claims(r.Context())
		if !ok {
			renderError(w, r, core.ErrUnauthorized)
			return
		}

		note := loadNote(w, r, store)
		if note == nil {
			return
		}

		if !note.AccessFor(claims.Subject).CanView() {
			renderError(w, r, core.ErrForbidden)
			return
		}

		render.JSON(w, r, note)
	}
}

func HandleUpdate(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.Claims(r.Context())
		if !ok {
			renderError(w, r, core.ErrUnauthorized)
			return
		}

		note := loadNote(w, r, store)
		if note == nil {
			return
		}

		if !note.AccessFor(claims.Subject).CanEdit() {
			renderError(w, r, core.ErrForbidden)
			return
		}

		var req notePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "invalid body"})
			return
		}

		if req.Title != nil {
			note.Title = *req.Title
		}
		if req.Content != nil {
			note.Content = *req.Content
		}

		if err := store.SaveNote(r.Context(), note); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "note_id": note.ID}).Error("Failed to update note")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "failed to update note"})
			return
		}

		render.JSON(w, r, note)
	}
}

func HandleDelete(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.Claims(r.Context())
		if !ok {
			renderError(w, r, core.ErrUnauthorized)
			return
		}

		note := loadNote(w, r, store)
		if note == nil {
			return
		}

		if note.Owner != claims.Subject {
			renderError(w, r, core.ErrForbidden)
			return
		}

		note.Deleted = true
		if err := store.SaveNote(r.Context(), note); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "note_id": note.ID}).Error("Failed to delete note")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "failed to delete note"})
			return
		}

		render.JSON(w, r, map[string]bool{"ok": true})
	}
}

func HandleShare(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.Claims(r.Context())
		if !ok {
			renderError(w, r, core.ErrUnauthorized)
			return
		}

		note := loadNote(w, r, store)
		if note == nil {
			return
		}

		if note.Owner != claims.Subject {
			renderError(w, r, core.ErrForbidden)
			return
		}

		var req sharePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "email required"})
			return
		}

		invitee, err := store.FindUserByEmail(r.Context(), req.Email)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "user to invite not found"})
			return
		}

		role := core.RoleViewer
		if req.Role == string(core.RoleEditor) {
			role = core.RoleEditor
		}
		note.Share(invitee.Subject, role)

		if err := store.SaveNote(r.Context(), note); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "note_id": note.ID}).Error("Failed to share note")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "failed to share note"})
			return
		}

		render.JSON(w, r, map[string]any{"ok": true, "note": note})
	}
}
