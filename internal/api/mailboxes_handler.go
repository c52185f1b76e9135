package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/imapvault/server/internal/accounts"
	"github.com/imapvault/server/internal/logging"
	"github.com/imapvault/server/internal/mailstore"
	"github.com/imapvault/server/internal/models"
)

// MailboxesHandler serves read access to the locally stored mailboxes of an
// account. It never talks to any IMAP server; everything comes from disk.
type MailboxesHandler struct {
	registry *accounts.Registry
	store    *mailstore.Store
	l        *logrus.Logger
}

// NewMailboxesHandler creates a new MailboxesHandler instance.
func NewMailboxesHandler(registry *accounts.Registry, store *mailstore.Store) *MailboxesHandler {
	return &MailboxesHandler{
		registry: registry,
		store:    store,
		l:        logging.Logger(logging.API),
	}
}

// Handle dispatches everything under /api/accounts/{id}/mailboxes:
//
//	GET /api/accounts/{id}/mailboxes
//	GET /api/accounts/{id}/mailboxes/{name}
//	GET /api/accounts/{id}/mailboxes/{name}/messages
//	GET /api/accounts/{id}/mailboxes/{name}/messages/{uid}
func (h *MailboxesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/accounts"), "/")
	segments := strings.Split(path, "/")
	if len(segments) < 2 || segments[1] != "mailboxes" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	account, err := h.registry.Get(segments[0])
	if err != nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	rest := segments[2:]
	switch {
	case len(rest) == 0:
		h.listMailboxes(w, account.Email)
	case len(rest) == 1:
		h.getSummary(w, account.Email, rest[0])
	case len(rest) == 2 && rest[1] == "messages":
		h.listMessages(w, account.Email, rest[0])
	case len(rest) == 3 && rest[1] == "messages":
		h.getMessage(w, account.Email, rest[0], rest[2])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *MailboxesHandler) listMailboxes(w http.ResponseWriter, email string) {
	folders, err := h.store.ListLocalFolders(email)
	if err != nil {
		h.l.WithError(err).Error("Could not list local folders")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if folders == nil {
		folders = []string{}
	}
	WriteJSONResponse(w, map[string]any{"mailboxes": folders})
}

func (h *MailboxesHandler) getSummary(w http.ResponseWriter, email, boxName string) {
	summary, err := h.store.ReadSummary(email, boxName)
	if err != nil {
		if errors.Is(err, mailstore.ErrSummaryNotFound) {
			http.Error(w, "Mailbox not found", http.StatusNotFound)
			return
		}
		h.l.WithError(err).Error("Could not read summary")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	WriteJSONResponse(w, summary)
}

func (h *MailboxesHandler) listMessages(w http.ResponseWriter, email, boxName string) {
	messages, err := h.store.ReadMessages(email, boxName)
	if err != nil {
		h.l.WithError(err).Error("Could not read messages")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	WriteJSONResponse(w, messages)
}

func (h *MailboxesHandler) getMessage(w http.ResponseWriter, email, boxName, uidStr string) {
	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		http.Error(w, "Invalid message id", http.StatusBadRequest)
		return
	}

	message, err := h.store.ReadMessage(email, boxName, uint32(uid))
	if err != nil {
		if errors.Is(err, mailstore.ErrMessageNotFound) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		h.l.WithError(err).Error("Could not read message")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	WriteJSONResponse(w, message)
}
