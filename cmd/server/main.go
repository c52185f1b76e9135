package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/imapvault/server/internal/accounts"
	"github.com/imapvault/server/internal/api"
	"github.com/imapvault/server/internal/config"
	"github.com/imapvault/server/internal/crypto"
	"github.com/imapvault/server/internal/logging"
	"github.com/imapvault/server/internal/mailstore"
	"github.com/imapvault/server/internal/sync"
	ws "github.com/imapvault/server/internal/websocket"
)

// Status entries are kept readable for a while after an operation finishes
// so pollers can catch the final state. Exports run longer and are polled
// less often, hence the longer window.
const (
	syncStatusRetention   = time.Minute
	exportStatusRetention = 5 * time.Minute
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logging.Logger(logging.Main).Fatalf("Failed to load config: %v", err)
	}
	logging.Init(cfg.LogLevel)

	l := logging.Logger(logging.Main)

	server, err := NewServer(cfg)
	if err != nil {
		l.Fatalf("Failed to build server: %v", err)
	}

	address := ":" + cfg.Port
	l.Infof("IMAP Vault server starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		l.Fatalf("Server failed to start: %v", err)
	}
}

// statusEvent is the WebSocket payload for a sync or export status change.
type statusEvent struct {
	Type string `json:"type"`
	Key  string `json:"key"`
	sync.Operation
}

// NewServer wires the whole application together and returns its HTTP
// handler.
func NewServer(cfg *config.Config) (http.Handler, error) {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("could not create encryptor: %w", err)
	}

	store := mailstore.New(cfg.DataDir)

	registry, err := accounts.NewRegistry(cfg.AccountsFile, encryptor, store)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(100)

	syncStatuses := sync.NewStatusRegistry(syncStatusRetention)
	syncStatuses.SetNotifier(func(key string, op sync.Operation) {
		hub.Broadcast(statusEvent{Type: "sync", Key: key, Operation: op})
	})

	exportStatuses := sync.NewStatusRegistry(exportStatusRetention)
	exportStatuses.SetNotifier(func(key string, op sync.Operation) {
		hub.Broadcast(statusEvent{Type: "export", Key: key, Operation: op})
	})

	syncer := sync.NewSyncer(store, syncStatuses, registry)
	exporter := sync.NewExporter(store, exportStatuses)

	accountsHandler := api.NewAccountsHandler(registry)
	mailboxesHandler := api.NewMailboxesHandler(registry, store)
	syncHandler := api.NewSyncHandler(registry, syncer, exporter)
	wsHandler := api.NewWebSocketHandler(hub)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)
	mux.HandleFunc("/api/health", handleHealth)

	mux.Handle("/api/accounts", api.WithCORS(http.HandlerFunc(accountsHandler.Handle)))
	mux.Handle("/api/accounts/", api.WithCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /api/accounts/{id}/mailboxes... belongs to the mailboxes handler,
		// everything else under the prefix is account CRUD.
		rest := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
		if segments := strings.Split(rest, "/"); len(segments) >= 2 && segments[1] == "mailboxes" {
			mailboxesHandler.Handle(w, r)
			return
		}
		accountsHandler.Handle(w, r)
	})))
	mux.Handle("/api/sync/", api.WithCORS(http.HandlerFunc(syncHandler.Handle)))
	mux.Handle("/api/ws", http.HandlerFunc(wsHandler.Handle))

	return mux, nil
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "IMAP Vault API is running")
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
