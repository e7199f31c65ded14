package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/service"
)

type participantsRequest struct {
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
}

func handleCreateConversation(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req participantsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		conv, err := convs.CreateConversation(r.Context(), CurrentUser(r), req.ParticipantIDs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

func handleListConversations(query *service.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := query.ListConversations(r.Context(), CurrentUser(r), pageRequest(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func handleGetConversation(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "conversationID")
		if !ok {
			return
		}
		conv, err := convs.GetConversation(r.Context(), CurrentUser(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleUpdateParticipants(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "conversationID")
		if !ok {
			return
		}
		var req participantsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		conv, err := convs.UpdateParticipants(r.Context(), CurrentUser(r), id, req.ParticipantIDs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// handleCachedView serves the windowed snapshot. as_of defaults to now.
func handleCachedView(query *service.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "conversationID")
		if !ok {
			return
		}
		asOf := time.Now()
		if raw := r.URL.Query().Get("as_of"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				badRequest(w, "as_of must be RFC3339")
				return
			}
			asOf = t
		}
		view, err := query.CachedConversationView(r.Context(), CurrentUser(r), id, asOf)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
