// Package mailstore persists downloaded mailboxes as per-account, per-folder
// JSON documents: the full message collection plus a derived summary index.
// The layout is one directory per account (keyed by email address) containing
// one directory per folder (keyed by sanitized folder name).
package mailstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/imapvault/server/internal/logging"
	"github.com/imapvault/server/internal/models"
)

const (
	messagesFile = "messages.json"
	summaryFile  = "summary.json"
)

var (
	// ErrSummaryNotFound is returned when a folder has no persisted summary.
	ErrSummaryNotFound = errors.New("summary not found")
	// ErrMessageNotFound is returned when a folder holds no message with the
	// requested UID.
	ErrMessageNotFound = errors.New("message not found")
)

// Store is the filesystem-backed mailbox store.
type Store struct {
	root string
	l    *logrus.Logger
}

func New(root string) *Store {
	return &Store{
		root: root,
		l:    logging.Logger(logging.Store),
	}
}

// SanitizeFolderName replaces characters that are unsafe in file names with
// underscores. IMAP folder paths are hierarchical strings like "INBOX/Sent",
// so the separator itself must be replaced too.
func SanitizeFolderName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}

func (s *Store) accountDir(accountEmail string) string {
	return filepath.Join(s.root, accountEmail)
}

func (s *Store) folderDir(accountEmail, boxName string) string {
	return filepath.Join(s.accountDir(accountEmail), SanitizeFolderName(boxName))
}

// EnsureAccountDir creates the per-account container directory. Called when
// an account is registered so that ListLocalFolders can tell "no folders yet"
// apart from "unknown account".
func (s *Store) EnsureAccountDir(accountEmail string) error {
	if err := os.MkdirAll(s.accountDir(accountEmail), 0o755); err != nil {
		return fmt.Errorf("could not create account directory: %w", err)
	}
	return nil
}

// HasAccountDir reports whether any data container exists for the account.
func (s *Store) HasAccountDir(accountEmail string) bool {
	info, err := os.Stat(s.accountDir(accountEmail))
	return err == nil && info.IsDir()
}

// ListLocalFolders returns the sanitized names of all folders with local
// data for the account. A missing account directory yields an empty list.
func (s *Store) ListLocalFolders(accountEmail string) ([]string, error) {
	entries, err := os.ReadDir(s.accountDir(accountEmail))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not list folders for %s: %w", accountEmail, err)
	}

	var folders []string
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, entry.Name())
		}
	}
	return folders, nil
}

// WriteMessages overwrites the folder's message collection and regenerates
// its summary. Both documents are written to temp files first and moved into
// place, so a concurrent reader sees either the old pair or the new pair of
// a file, never a torn write. The summary is renamed last: it always
// describes a collection that has already been persisted.
func (s *Store) WriteMessages(accountEmail, boxName string, messages []models.Message) error {
	dir := s.folderDir(accountEmail, boxName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create folder directory: %w", err)
	}

	if messages == nil {
		messages = []models.Message{}
	}

	if err := writeJSONFile(filepath.Join(dir, messagesFile), messages); err != nil {
		return fmt.Errorf("could not write messages for %s: %w", boxName, err)
	}

	summary := BuildSummary(boxName, messages, time.Now().UTC())
	if err := writeJSONFile(filepath.Join(dir, summaryFile), summary); err != nil {
		return fmt.Errorf("could not write summary for %s: %w", boxName, err)
	}

	s.l.WithFields(logrus.Fields{
		"account": accountEmail,
		"folder":  boxName,
		"count":   len(messages),
	}).Debug("Persisted folder")

	return nil
}

// ReadMessages returns the stored collection for a folder. A folder that was
// never synced yields an empty collection, not an error.
func (s *Store) ReadMessages(accountEmail, boxName string) ([]models.Message, error) {
	data, err := os.ReadFile(filepath.Join(s.folderDir(accountEmail, boxName), messagesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read messages for %s: %w", boxName, err)
	}

	var messages []models.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("could not decode messages for %s: %w", boxName, err)
	}
	return messages, nil
}

// ReadMessage returns one stored message by UID.
func (s *Store) ReadMessage(accountEmail, boxName string, uid uint32) (*models.Message, error) {
	messages, err := s.ReadMessages(accountEmail, boxName)
	if err != nil {
		return nil, err
	}

	for i := range messages {
		if messages[i].UID == uid {
			return &messages[i], nil
		}
	}
	return nil, ErrMessageNotFound
}

// ReadSummary returns the persisted summary for a folder.
func (s *Store) ReadSummary(accountEmail, boxName string) (*models.MailboxSummary, error) {
	data, err := os.ReadFile(filepath.Join(s.folderDir(accountEmail, boxName), summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSummaryNotFound
		}
		return nil, fmt.Errorf("could not read summary for %s: %w", boxName, err)
	}

	var summary models.MailboxSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("could not decode summary for %s: %w", boxName, err)
	}
	return &summary, nil
}

// BuildSummary derives the summary index from a message collection. It is a
// pure projection: regenerating it from the stored collection must reproduce
// the persisted summary exactly, apart from the download timestamp.
func BuildSummary(boxName string, messages []models.Message, downloadedAt time.Time) *models.MailboxSummary {
	entries := make([]models.SummaryEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, models.SummaryEntry{
			UID:     msg.UID,
			Subject: msg.Subject,
			From:    msg.From,
			Date:    msg.Date,
			Flags:   msg.Flags,
		})
	}

	return &models.MailboxSummary{
		BoxName:      boxName,
		MessageCount: len(messages),
		DownloadedAt: downloadedAt,
		Messages:     entries,
	}
}

// writeJSONFile writes v as indented JSON through a temp file and an atomic
// rename.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("could not write temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("could not move file into place: %w", err)
	}
	return nil
}
