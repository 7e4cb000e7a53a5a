package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"studymate/internal/app"
	"studymate/pkg/domain"
)

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

// handleChat accepts a multipart or url-encoded form with an optional
// message, conversation_id and file attachment.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	in := app.ChatInput{}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload")
			return
		}
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			data, readErr := io.ReadAll(file)
			if readErr != nil {
				writeError(w, http.StatusBadRequest, "unreadable upload")
				return
			}
			in.FileName = header.Filename
			in.FileData = data
		} else if !errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, "invalid upload")
			return
		}
	} else if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	in.Message = strings.TrimSpace(r.PostFormValue("message"))
	in.ConversationID = r.PostFormValue("conversation_id")

	res, err := s.app.Chat(r.Context(), user, in)
	if err != nil {
		s.audit(r, "chat", "fail", "user_id", user.ID, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:       res.Response,
		ConversationID: res.ConversationID,
	})
}

type conversationSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (s *Server) handleGetConversations(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	conversations, err := s.app.ListConversations(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]conversationSummary, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, conversationSummary{ID: c.ID, Title: c.Title})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, ok := pathID(r, "/get_chat/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	turns, err := s.app.GetChatHistory(user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if turns == nil {
		turns = []domain.ChatTurn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id, ok := pathID(r, "/delete_conversation/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.app.DeleteConversation(user, id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
