package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/imapvault/server/internal/accounts"
	"github.com/imapvault/server/internal/logging"
	"github.com/imapvault/server/internal/models"
	"github.com/imapvault/server/internal/sync"
)

// SyncStarter triggers account syncs and reports their progress.
type SyncStarter interface {
	Start(account models.Account, password string) error
	Status(accountID string) (sync.Operation, bool)
}

// ExportStarter triggers cross-account exports and reports their progress.
type ExportStarter interface {
	Start(source, target models.Account, targetPassword string, mailboxes []string) error
	Status(exportID string) (sync.Operation, bool)
}

// SyncHandler handles sync and export API requests.
type SyncHandler struct {
	registry *accounts.Registry
	syncer   SyncStarter
	exporter ExportStarter
	l        *logrus.Logger
}

// NewSyncHandler creates a new SyncHandler instance.
func NewSyncHandler(registry *accounts.Registry, syncer SyncStarter, exporter ExportStarter) *SyncHandler {
	return &SyncHandler{
		registry: registry,
		syncer:   syncer,
		exporter: exporter,
		l:        logging.Logger(logging.API),
	}
}

// Handle dispatches everything under /api/sync/:
//
//	POST /api/sync/{accountId}
//	GET  /api/sync/{accountId}/status
//	POST /api/sync/export
//	GET  /api/sync/export/{exportId}/status
func (h *SyncHandler) Handle(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sync"), "/")
	if path == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	segments := strings.Split(path, "/")

	if segments[0] == "export" {
		h.handleExport(w, r, segments[1:])
		return
	}

	switch {
	case len(segments) == 1 && r.Method == http.MethodPost:
		h.startSync(w, segments[0])
	case len(segments) == 2 && segments[1] == "status" && r.Method == http.MethodGet:
		h.syncStatus(w, segments[0])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *SyncHandler) handleExport(w http.ResponseWriter, r *http.Request, segments []string) {
	switch {
	case len(segments) == 0 && r.Method == http.MethodPost:
		h.startExport(w, r)
	case len(segments) == 2 && segments[1] == "status" && r.Method == http.MethodGet:
		h.exportStatus(w, segments[0])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *SyncHandler) startSync(w http.ResponseWriter, accountID string) {
	account, err := h.registry.Get(accountID)
	if err != nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	password, err := h.registry.DecryptPassword(account)
	if err != nil {
		h.l.WithError(err).Error("Could not decrypt account password")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.syncer.Start(account, password); err != nil {
		if errors.Is(err, sync.ErrAlreadyRunning) {
			http.Error(w, "Sync already running for this account", http.StatusConflict)
			return
		}
		h.l.WithError(err).Error("Could not start sync")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]string{
		"message":   "Sync started",
		"accountId": account.ID,
		"email":     account.Email,
	})
}

func (h *SyncHandler) syncStatus(w http.ResponseWriter, accountID string) {
	op, ok := h.syncer.Status(accountID)
	if !ok {
		WriteJSONResponse(w, map[string]string{"status": "idle"})
		return
	}
	WriteJSONResponse(w, op)
}

type exportRequest struct {
	SourceAccountID string   `json:"sourceAccountId"`
	TargetAccountID string   `json:"targetAccountId"`
	Mailboxes       []string `json:"mailboxes"`
}

func (h *SyncHandler) startExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.SourceAccountID == "" || req.TargetAccountID == "" {
		http.Error(w, "sourceAccountId and targetAccountId are required", http.StatusBadRequest)
		return
	}

	source, err := h.registry.Get(req.SourceAccountID)
	if err != nil {
		http.Error(w, "Source account not found", http.StatusNotFound)
		return
	}

	target, err := h.registry.Get(req.TargetAccountID)
	if err != nil {
		http.Error(w, "Target account not found", http.StatusNotFound)
		return
	}

	targetPassword, err := h.registry.DecryptPassword(target)
	if err != nil {
		h.l.WithError(err).Error("Could not decrypt target account password")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.exporter.Start(source, target, targetPassword, req.Mailboxes); err != nil {
		if errors.Is(err, sync.ErrAlreadyRunning) {
			http.Error(w, "Export already running for this account pair", http.StatusConflict)
			return
		}
		h.l.WithError(err).Error("Could not start export")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]string{
		"message":     "Export started",
		"exportId":    sync.ExportID(source.ID, target.ID),
		"sourceEmail": source.Email,
		"targetEmail": target.Email,
	})
}

func (h *SyncHandler) exportStatus(w http.ResponseWriter, exportID string) {
	op, ok := h.exporter.Status(exportID)
	if !ok {
		WriteJSONResponse(w, map[string]string{"status": "idle"})
		return
	}
	WriteJSONResponse(w, op)
}
