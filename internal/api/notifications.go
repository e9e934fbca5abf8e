package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/npezzotti/go-vibes/internal/types"
)

func (s *VibesApp) listNotifications(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	dbNotifications, err := s.db.ListNotifications(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	notifications := make([]types.Notification, 0, len(dbNotifications))
	for _, n := range dbNotifications {
		notifications = append(notifications, toNotification(n))
	}

	s.writeJson(w, http.StatusOK, notifications)
}

// notificationId returns the id from the path. Ids that are not uuids cannot
// exist, so they are reported as not found.
func (s *VibesApp) notificationId(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, NewNotFoundError())
		return "", false
	}

	return id.String(), true
}

func (s *VibesApp) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	id, ok := s.notificationId(w, r)
	if !ok {
		return
	}

	if err := s.db.MarkNotificationRead(r.Context(), userId, id); err != nil {
		s.writeError(w, dbError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *VibesApp) deleteNotification(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	id, ok := s.notificationId(w, r)
	if !ok {
		return
	}

	if err := s.db.DeleteNotification(r.Context(), userId, id); err != nil {
		s.writeError(w, dbError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *VibesApp) clearReadNotifications(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("read") != "true" {
		s.writeError(w, NewValidationError("only read notifications can be cleared"))
		return
	}

	deleted, err := s.db.DeleteReadNotifications(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"deleted": deleted})
}
