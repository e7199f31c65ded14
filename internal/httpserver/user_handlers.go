package httpserver

import (
	"net/http"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

func handleDeleteAccount(users *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := users.DeleteAccount(r.Context(), CurrentUser(r)); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUnread(notify *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		unread, err := notify.UnreadFor(r.Context(), CurrentUser(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if unread == nil {
			unread = []*domain.UnreadMessage{}
		}
		writeJSON(w, http.StatusOK, unread)
	}
}

func handleMarkRead(notify *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "messageID")
		if !ok {
			return
		}
		if err := notify.MarkRead(r.Context(), CurrentUser(r), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
