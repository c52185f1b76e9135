package api

import (
	"path/filepath"
	"testing"

	"github.com/imapvault/server/internal/accounts"
	"github.com/imapvault/server/internal/mailstore"
	"github.com/imapvault/server/internal/models"
	"github.com/imapvault/server/internal/sync"
	"github.com/imapvault/server/internal/testutil"
)

// newTestDeps builds a registry and mail store over a temp directory.
func newTestDeps(t *testing.T) (*accounts.Registry, *mailstore.Store) {
	t.Helper()

	dir := t.TempDir()
	store := mailstore.New(filepath.Join(dir, "data"))

	registry, err := accounts.NewRegistry(filepath.Join(dir, "accounts.json"), testutil.TestEncryptor(t), store)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	return registry, store
}

// addTestAccount registers an account and returns it.
func addTestAccount(t *testing.T, registry *accounts.Registry, email string) models.Account {
	t.Helper()

	account, err := registry.Add(accounts.AddParams{
		Email:    email,
		Host:     "mail.example.com",
		Password: "secret-" + email,
	})
	if err != nil {
		t.Fatalf("Failed to add account: %v", err)
	}
	return account
}

// fakeSyncStarter records Start calls and serves canned statuses.
type fakeSyncStarter struct {
	startErr  error
	started   []models.Account
	passwords []string
	statuses  map[string]sync.Operation
}

func (f *fakeSyncStarter) Start(account models.Account, password string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, account)
	f.passwords = append(f.passwords, password)
	return nil
}

func (f *fakeSyncStarter) Status(accountID string) (sync.Operation, bool) {
	op, ok := f.statuses[accountID]
	return op, ok
}

// fakeExportStarter records Start calls and serves canned statuses.
type fakeExportStarter struct {
	startErr  error
	sources   []models.Account
	targets   []models.Account
	passwords []string
	mailboxes [][]string
	statuses  map[string]sync.Operation
}

func (f *fakeExportStarter) Start(source, target models.Account, targetPassword string, mailboxes []string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.sources = append(f.sources, source)
	f.targets = append(f.targets, target)
	f.passwords = append(f.passwords, targetPassword)
	f.mailboxes = append(f.mailboxes, mailboxes)
	return nil
}

func (f *fakeExportStarter) Status(exportID string) (sync.Operation, bool) {
	op, ok := f.statuses[exportID]
	return op, ok
}
