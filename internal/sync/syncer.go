package sync

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/imapvault/server/internal/codec"
	"github.com/imapvault/server/internal/imap"
	"github.com/imapvault/server/internal/logging"
	"github.com/imapvault/server/internal/mailstore"
	"github.com/imapvault/server/internal/models"
)

// Session is the slice of the protocol session the coordinators drive.
type Session interface {
	ListFolders() ([]string, error)
	WithFolderLock(boxName string, fn func() error) error
	FetchAllMessages(boxName string) (<-chan imap.FetchResult, error)
	CreateFolder(boxName string) error
	Append(boxName string, raw []byte, flags []string, date time.Time) error
	Close()
}

// Connector opens an authenticated session.
type Connector func(cfg imap.Config) (Session, error)

func defaultConnector(cfg imap.Config) (Session, error) {
	return imap.Connect(cfg)
}

// HostResolver guesses the IMAP host for accounts without an explicit one.
type HostResolver interface {
	DiscoverHost(email string) string
}

// LastSyncRecorder lets the coordinator report a successful sync back to the
// account registry.
type LastSyncRecorder interface {
	RecordLastSync(accountID string, at time.Time) error
}

// Syncer runs whole-account synchronizations: it downloads every folder of
// an account into the mail store, one folder at a time, at most one run per
// account at a time.
type Syncer struct {
	connect  Connector
	resolver HostResolver
	store    *mailstore.Store
	statuses *StatusRegistry
	recorder LastSyncRecorder
	l        *logrus.Logger
}

func NewSyncer(store *mailstore.Store, statuses *StatusRegistry, recorder LastSyncRecorder) *Syncer {
	return &Syncer{
		connect:  defaultConnector,
		resolver: imap.NewDiscoverer(),
		store:    store,
		statuses: statuses,
		recorder: recorder,
		l:        logging.Logger(logging.Sync),
	}
}

// Start begins a sync for the account as a background task and returns
// immediately. It returns ErrAlreadyRunning if a sync for this account is
// already in flight. The password is the decrypted credential; decryption is
// the caller's concern.
func (s *Syncer) Start(account models.Account, password string) error {
	if !s.statuses.TryStart(account.ID) {
		return ErrAlreadyRunning
	}

	go s.run(account, password)
	return nil
}

// Status returns the operation record for the account, if one exists.
func (s *Syncer) Status(accountID string) (Operation, bool) {
	return s.statuses.Get(accountID)
}

func (s *Syncer) run(account models.Account, password string) {
	l := s.l.WithField("email", account.Email)
	defer func() {
		if r := recover(); r != nil {
			l.WithField("panic", r).Error("Sync crashed")
			s.statuses.Fail(account.ID, fmt.Sprintf("sync crashed: %v", r))
		}
	}()
	l.Info("Sync started")

	host := account.Host
	if host == "" {
		host = s.resolver.DiscoverHost(account.Email)
	}

	session, err := s.connect(imap.Config{
		Host:     host,
		Port:     account.Port,
		Username: account.Username,
		Password: password,
		TLS:      account.TLS,
	})
	if err != nil {
		l.WithError(err).Error("Sync failed to connect")
		s.statuses.Fail(account.ID, err.Error())
		return
	}
	defer session.Close()

	folders, err := session.ListFolders()
	if err != nil {
		l.WithError(err).Error("Sync failed to list folders")
		s.statuses.Fail(account.ID, err.Error())
		return
	}

	result := models.SyncResult{
		Email:        account.Email,
		MailboxCount: len(folders),
	}
	for _, boxName := range folders {
		folderResult := s.syncFolder(session, account.Email, boxName)
		result.TotalMessages += folderResult.Count
		result.Folders = append(result.Folders, folderResult)
	}

	s.statuses.Complete(account.ID, result)
	l.WithFields(logrus.Fields{
		"mailboxes": result.MailboxCount,
		"messages":  result.TotalMessages,
	}).Info("Sync completed")

	if err := s.recorder.RecordLastSync(account.ID, time.Now()); err != nil {
		l.WithError(err).Warn("Could not record last sync time")
	}
}

// syncFolder downloads one folder and persists it. Failures stay inside the
// returned result; one broken folder never aborts the rest of the sync.
func (s *Syncer) syncFolder(session Session, accountEmail, boxName string) models.FolderSyncResult {
	l := s.l.WithFields(logrus.Fields{"email": accountEmail, "folder": boxName})

	var messages []models.Message
	err := session.WithFolderLock(boxName, func() error {
		stream, err := session.FetchAllMessages(boxName)
		if err != nil {
			return err
		}

		for item := range stream {
			if item.Err != nil {
				if item.UID == 0 {
					return item.Err
				}
				l.WithError(item.Err).WithField("uid", item.UID).Warn("Skipping unreadable message")
				continue
			}

			msg, err := codec.Parse(item.Raw.Body, item.Raw.UID, item.Raw.Flags)
			if err != nil {
				l.WithError(err).WithField("uid", item.UID).Warn("Skipping unparseable message")
				continue
			}
			messages = append(messages, *msg)
		}
		return nil
	})
	if err != nil {
		l.WithError(err).Error("Folder sync failed")
		return models.FolderSyncResult{BoxName: boxName, Error: err.Error()}
	}

	if err := s.store.WriteMessages(accountEmail, boxName, messages); err != nil {
		l.WithError(err).Error("Could not persist folder")
		return models.FolderSyncResult{BoxName: boxName, Error: err.Error()}
	}

	l.WithField("count", len(messages)).Info("Folder synced")
	return models.FolderSyncResult{BoxName: boxName, Count: len(messages)}
}
