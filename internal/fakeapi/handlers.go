package fakeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"webmail/internal/models"
	"webmail/internal/stubs"

	"github.com/google/uuid"
)

const maxUploadSize = 10 << 20

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	for _, account := range stubs.Accounts {
		if account.Username == req.Username && account.Password == req.Password {
			s.mu.Lock()
			delete(s.revoked, account.User.ID)
			s.mu.Unlock()

			writeJSON(w, http.StatusOK, models.LoginResponse{
				Token: s.IssueToken(account.User.ID, s.now().Add(s.tokenTTL())),
				User:  account.User,
			})
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "invalid credentials")
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fail, delay := s.refreshFails, s.refreshDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if fail {
		writeError(w, http.StatusUnauthorized, "refresh rejected")
		return
	}

	userID, _, err := s.verify(r, true)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "refresh rejected")
		return
	}
	writeJSON(w, http.StatusOK, models.RefreshResponse{Token: s.IssueToken(userID, s.now().Add(s.tokenTTL()))})
}

func (s *Server) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	folder := models.Folder(r.URL.Query().Get("folder"))
	if !folder.Valid() {
		writeError(w, http.StatusBadRequest, "unknown folder")
		return
	}

	s.mu.Lock()
	conversations := make([]models.Conversation, 0, len(s.folders[folder]))
	for _, c := range s.folders[folder] {
		c.Messages = nil
		conversations = append(conversations, c)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) findConversation(id string) (models.Folder, int, bool) {
	for folder, conversations := range s.folders {
		for i, c := range conversations {
			if c.ID == id {
				return folder, i, true
			}
		}
	}
	return "", 0, false
}

func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	folder, i, ok := s.findConversation(r.PathValue("id"))
	var conversation models.Conversation
	if ok {
		conversation = s.folders[folder][i]
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

func (s *Server) moveHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Folder models.Folder `json:"folder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Folder.Valid() {
		writeError(w, http.StatusBadRequest, "unknown folder")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	from, i, ok := s.findConversation(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	conversation := s.folders[from][i]
	s.folders[from] = append(s.folders[from][:i:i], s.folders[from][i+1:]...)
	s.folders[req.Folder] = append(s.folders[req.Folder], conversation)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	to := r.FormValue("to")
	if to == "" {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: r.FormValue("replyTo"),
		Subject:        r.FormValue("subject"),
		Body:           r.FormValue("body"),
		SentAt:         s.now().Unix(),
	}
	if msg.ConversationID == "" {
		msg.ConversationID = uuid.NewString()
	}
	for _, email := range strings.Split(to, ",") {
		msg.To = append(msg.To, models.Contact{Email: strings.TrimSpace(email)})
	}

	for _, fh := range r.MultipartForm.File["attachments"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid attachment")
			return
		}
		size, _ := io.Copy(io.Discard, f)
		_ = f.Close()
		msg.Attachments = append(msg.Attachments, models.Attachment{
			ID:       uuid.NewString(),
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     size,
		})
	}

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) contactsHandler(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	contacts := []models.Contact{}
	for _, c := range stubs.Contacts {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Email), q) {
			contacts = append(contacts, c)
		}
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (s *Server) attachmentHandler(w http.ResponseWriter, r *http.Request) {
	data, ok := stubs.Attachments[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "attachment not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}
