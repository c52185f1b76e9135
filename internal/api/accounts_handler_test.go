package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imapvault/server/internal/models"
)

func TestAccountsHandlerCreate(t *testing.T) {
	t.Run("registers an account and hides the password", func(t *testing.T) {
		registry, _ := newTestDeps(t)
		handler := NewAccountsHandler(registry)

		body := `{"email":"a@x.com","password":"hunter2","host":"mail.x.com","port":143}`
		req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.Handle(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)

		var account models.Account
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &account))
		assert.Equal(t, "a@x.com", account.Email)
		assert.Equal(t, "mail.x.com", account.Host)
		assert.Equal(t, 143, account.Port)
		assert.Empty(t, account.Password)
		assert.NotEmpty(t, account.ID)
	})

	t.Run("rejects a missing email or password", func(t *testing.T) {
		registry, _ := newTestDeps(t)
		handler := NewAccountsHandler(registry)

		req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"email":"a@x.com"}`))
		rr := httptest.NewRecorder()
		handler.Handle(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		registry, _ := newTestDeps(t)
		handler := NewAccountsHandler(registry)

		req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader("{not json"))
		rr := httptest.NewRecorder()
		handler.Handle(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects a duplicate email", func(t *testing.T) {
		registry, _ := newTestDeps(t)
		addTestAccount(t, registry, "a@x.com")
		handler := NewAccountsHandler(registry)

		body := `{"email":"a@x.com","password":"pw"}`
		req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.Handle(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestAccountsHandlerList(t *testing.T) {
	registry, _ := newTestDeps(t)
	addTestAccount(t, registry, "a@x.com")
	addTestAccount(t, registry, "b@y.com")
	handler := NewAccountsHandler(registry)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var listed []models.Account
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed, 2)
	for _, account := range listed {
		assert.Empty(t, account.Password)
	}
}

func TestAccountsHandlerGet(t *testing.T) {
	registry, _ := newTestDeps(t)
	added := addTestAccount(t, registry, "a@x.com")
	handler := NewAccountsHandler(registry)

	t.Run("returns the account", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts/"+added.ID, nil)
		rr := httptest.NewRecorder()
		handler.Handle(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var account models.Account
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &account))
		assert.Equal(t, added.ID, account.ID)
		assert.Empty(t, account.Password)
	})

	t.Run("returns 404 for an unknown id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts/missing", nil)
		rr := httptest.NewRecorder()
		handler.Handle(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAccountsHandlerUpdate(t *testing.T) {
	registry, _ := newTestDeps(t)
	added := addTestAccount(t, registry, "a@x.com")
	handler := NewAccountsHandler(registry)

	t.Run("changes the given fields", func(t *testing.T) {
		body := `{"host":"imap.new.com"}`
		req := httptest.NewRequest(http.MethodPut, "/api/accounts/"+added.ID, strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.Handle(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var account models.Account
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &account))
		assert.Equal(t, "imap.new.com", account.Host)
		assert.Equal(t, "a@x.com", account.Email)
	})

	t.Run("returns 404 for an unknown id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/accounts/missing", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		handler.Handle(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAccountsHandlerDelete(t *testing.T) {
	registry, _ := newTestDeps(t)
	added := addTestAccount(t, registry, "a@x.com")
	handler := NewAccountsHandler(registry)

	req := httptest.NewRequest(http.MethodDelete, "/api/accounts/"+added.ID, nil)
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, registry.List())

	rr = httptest.NewRecorder()
	handler.Handle(rr, httptest.NewRequest(http.MethodDelete, "/api/accounts/"+added.ID, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAccountsHandlerMethodNotAllowed(t *testing.T) {
	registry, _ := newTestDeps(t)
	handler := NewAccountsHandler(registry)

	req := httptest.NewRequest(http.MethodDelete, "/api/accounts", nil)
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
