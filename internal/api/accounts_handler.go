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
)

// AccountsHandler handles account registry API requests.
type AccountsHandler struct {
	registry *accounts.Registry
	l        *logrus.Logger
}

// NewAccountsHandler creates a new AccountsHandler instance.
func NewAccountsHandler(registry *accounts.Registry) *AccountsHandler {
	return &AccountsHandler{
		registry: registry,
		l:        logging.Logger(logging.API),
	}
}

// Handle dispatches /api/accounts and /api/accounts/{id} requests.
func (h *AccountsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/accounts"), "/")

	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AccountsHandler) list(w http.ResponseWriter) {
	all := h.registry.List()
	sanitized := make([]models.Account, len(all))
	for i, account := range all {
		sanitized[i] = account.Sanitized()
	}
	WriteJSONResponse(w, sanitized)
}

type createAccountRequest struct {
	Email    string `json:"email"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	TLS      *bool  `json:"tls"`
}

func (h *AccountsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	account, err := h.registry.Add(accounts.AddParams{
		Email:    req.Email,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		TLS:      req.TLS,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrEmailExists) {
			http.Error(w, "Account with this email already exists", http.StatusConflict)
			return
		}
		h.l.WithError(err).Error("Could not add account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, http.StatusCreated, account.Sanitized())
}

func (h *AccountsHandler) get(w http.ResponseWriter, id string) {
	account, err := h.registry.Get(id)
	if err != nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}
	WriteJSONResponse(w, account.Sanitized())
}

type updateAccountRequest struct {
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	TLS      *bool   `json:"tls"`
}

func (h *AccountsHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.registry.Update(id, accounts.UpdateParams{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		TLS:      req.TLS,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		h.l.WithError(err).Error("Could not update account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, account.Sanitized())
}

func (h *AccountsHandler) delete(w http.ResponseWriter, id string) {
	if err := h.registry.Delete(id); err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		h.l.WithError(err).Error("Could not delete account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
