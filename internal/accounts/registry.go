// Package accounts keeps the registered IMAP accounts in a JSON file next to
// the mail data. Credentials are encrypted before they touch the disk and
// only decrypted on demand when an operation needs to log in.
package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/imapvault/server/internal/crypto"
	"github.com/imapvault/server/internal/logging"
	"github.com/imapvault/server/internal/mailstore"
	"github.com/imapvault/server/internal/models"
)

const defaultIMAPPort = 993

var (
	// ErrNotFound is returned when no account exists under the given id.
	ErrNotFound = errors.New("account not found")
	// ErrEmailExists rejects registering the same email address twice.
	ErrEmailExists = errors.New("account with this email already exists")
)

// AddParams describes a new account. Email and Password are required; Port
// defaults to 993 and Username defaults to the email address.
type AddParams struct {
	Email    string
	Host     string
	Port     int
	Username string
	Password string
	TLS      *bool
}

// UpdateParams carries the fields to change on an account. Nil means leave
// the field alone.
type UpdateParams struct {
	Host     *string
	Port     *int
	Username *string
	Password *string
	TLS      *bool
}

// Registry is the account store. All access goes through its lock; every
// mutation is persisted to the backing file before it returns.
type Registry struct {
	mu        sync.Mutex
	path      string
	encryptor *crypto.Encryptor
	store     *mailstore.Store
	accounts  []models.Account
	l         *logrus.Logger
}

// NewRegistry loads the registry from path, or starts empty if the file does
// not exist yet.
func NewRegistry(path string, encryptor *crypto.Encryptor, store *mailstore.Store) (*Registry, error) {
	r := &Registry{
		path:      path,
		encryptor: encryptor,
		store:     store,
		l:         logging.Logger(logging.Accounts),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("could not read accounts file: %w", err)
	}

	if err := json.Unmarshal(data, &r.accounts); err != nil {
		return nil, fmt.Errorf("could not parse accounts file: %w", err)
	}

	r.l.WithField("count", len(r.accounts)).Info("Loaded accounts")
	return r, nil
}

// List returns a copy of all registered accounts, passwords included in
// their encrypted form.
func (r *Registry) List() []models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Account(nil), r.accounts...)
}

// Get returns the account with the given id.
func (r *Registry) Get(id string) (models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range r.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return models.Account{}, ErrNotFound
}

// Add registers a new account. The password is encrypted before it is
// stored, and the account's mail data directory is created right away.
func (r *Registry) Add(params AddParams) (models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if existing.Email == params.Email {
			return models.Account{}, ErrEmailExists
		}
	}

	encrypted, err := r.encryptor.Encrypt(params.Password)
	if err != nil {
		return models.Account{}, fmt.Errorf("could not encrypt password: %w", err)
	}

	account := models.Account{
		ID:        uuid.NewString(),
		Email:     params.Email,
		Host:      params.Host,
		Port:      params.Port,
		Username:  params.Username,
		Password:  encrypted,
		TLS:       true,
		CreatedAt: time.Now().UTC(),
		Status:    models.AccountStatusActive,
	}
	if account.Port == 0 {
		account.Port = defaultIMAPPort
	}
	if account.Username == "" {
		account.Username = account.Email
	}
	if params.TLS != nil {
		account.TLS = *params.TLS
	}

	if err := r.store.EnsureAccountDir(account.Email); err != nil {
		return models.Account{}, err
	}

	r.accounts = append(r.accounts, account)
	if err := r.save(); err != nil {
		r.accounts = r.accounts[:len(r.accounts)-1]
		return models.Account{}, err
	}

	r.l.WithField("email", account.Email).Info("Account added")
	return account, nil
}

// Update changes the given fields of an account. A new password is
// encrypted before it replaces the old one.
func (r *Registry) Update(id string, params UpdateParams) (models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return models.Account{}, ErrNotFound
	}

	account := r.accounts[idx]
	if params.Host != nil {
		account.Host = *params.Host
	}
	if params.Port != nil {
		account.Port = *params.Port
	}
	if params.Username != nil {
		account.Username = *params.Username
	}
	if params.TLS != nil {
		account.TLS = *params.TLS
	}
	if params.Password != nil {
		encrypted, err := r.encryptor.Encrypt(*params.Password)
		if err != nil {
			return models.Account{}, fmt.Errorf("could not encrypt password: %w", err)
		}
		account.Password = encrypted
	}

	previous := r.accounts[idx]
	r.accounts[idx] = account
	if err := r.save(); err != nil {
		r.accounts[idx] = previous
		return models.Account{}, err
	}

	return account, nil
}

// Delete removes an account from the registry. Its downloaded mail stays on
// disk.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return ErrNotFound
	}

	removed := r.accounts[idx]
	r.accounts = append(r.accounts[:idx], r.accounts[idx+1:]...)
	if err := r.save(); err != nil {
		return err
	}

	r.l.WithField("email", removed.Email).Info("Account deleted")
	return nil
}

// DecryptPassword returns the plaintext credential of an account.
func (r *Registry) DecryptPassword(account models.Account) (string, error) {
	password, err := r.encryptor.Decrypt(account.Password)
	if err != nil {
		return "", fmt.Errorf("could not decrypt password for %s: %w", account.Email, err)
	}
	return password, nil
}

// RecordLastSync stamps the account with the time of its latest successful
// sync.
func (r *Registry) RecordLastSync(accountID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(accountID)
	if idx < 0 {
		return ErrNotFound
	}

	r.accounts[idx].LastSync = &at
	return r.save()
}

func (r *Registry) indexOf(id string) int {
	for i, account := range r.accounts {
		if account.ID == id {
			return i
		}
	}
	return -1
}

// save writes the registry file through a temp file and a rename, so a crash
// mid-write cannot leave a half-written registry behind.
func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode accounts: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("could not write accounts file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("could not replace accounts file: %w", err)
	}
	return nil
}
