package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

type createMessageRequest struct {
	ReceiverID      *uuid.UUID `json:"receiver_id"`
	ParentMessageID *uuid.UUID `json:"parent_message_id"`
	Content         string     `json:"content"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func handleCreateConversationMessage(msgs *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convID, ok := uuidParam(w, r, "conversationID")
		if !ok {
			return
		}
		var req createMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.ReceiverID != nil {
			badRequest(w, "receiver_id is not allowed on conversation messages")
			return
		}
		createMessage(w, r, msgs, service.CreateMessageInput{
			ConversationID: &convID,
			ParentID:       req.ParentMessageID,
			Content:        req.Content,
		})
	}
}

func handleCreateDirectMessage(msgs *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		createMessage(w, r, msgs, service.CreateMessageInput{
			ReceiverID: req.ReceiverID,
			ParentID:   req.ParentMessageID,
			Content:    req.Content,
		})
	}
}

func createMessage(w http.ResponseWriter, r *http.Request, msgs *service.MessageService, in service.CreateMessageInput) {
	msg, err := msgs.CreateMessage(r.Context(), CurrentUser(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func handleListMessages(query *service.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := messageFilter(r)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		page, err := query.ListMessages(r.Context(), CurrentUser(r), f, pageRequest(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func messageFilter(r *http.Request) (domain.MessageFilter, error) {
	q := r.URL.Query()
	var f domain.MessageFilter

	ids := []struct {
		name string
		dst  **uuid.UUID
	}{
		{"conversation", &f.ConversationID},
		{"sender", &f.SenderID},
		{"participant", &f.ParticipantID},
	}
	for _, p := range ids {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, fmt.Errorf("invalid %s", p.name)
		}
		*p.dst = &id
	}

	times := []struct {
		name string
		dst  **time.Time
	}{
		{"start", &f.Start},
		{"end", &f.End},
	}
	for _, p := range times {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("%s must be RFC3339", p.name)
		}
		*p.dst = &t
	}

	f.SenderName = q.Get("sender_name")
	return f, nil
}

func handleGetMessage(msgs *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "messageID")
		if !ok {
			return
		}
		msg, err := msgs.GetMessage(r.Context(), CurrentUser(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

func handleDeleteMessage(msgs *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "messageID")
		if !ok {
			return
		}
		if err := msgs.DeleteMessage(r.Context(), CurrentUser(r), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleEditMessage(msgs *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "messageID")
		if !ok {
			return
		}
		var req editMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		msg, err := msgs.EditMessage(r.Context(), CurrentUser(r), id, req.Content)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

func handleMessageHistory(msgs *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "messageID")
		if !ok {
			return
		}
		history, err := msgs.History(r.Context(), CurrentUser(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if history == nil {
			history = []*domain.MessageHistory{}
		}
		writeJSON(w, http.StatusOK, history)
	}
}

func handleThread(threads *service.ThreadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "messageID")
		if !ok {
			return
		}
		root, err := threads.BuildThread(r.Context(), CurrentUser(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, root)
	}
}
