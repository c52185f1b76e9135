package sync

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/imapvault/server/internal/codec"
	"github.com/imapvault/server/internal/imap"
	"github.com/imapvault/server/internal/logging"
	"github.com/imapvault/server/internal/mailstore"
	"github.com/imapvault/server/internal/models"
)

// ExportID is the status key of an export run between two accounts.
func ExportID(sourceID, targetID string) string {
	return sourceID + "->" + targetID
}

// Exporter replays locally stored mail of a source account into a target
// account. The source server is never contacted; the local store is the
// source of truth. At most one export per (source, target) pair runs at a
// time.
type Exporter struct {
	connect  Connector
	resolver HostResolver
	store    *mailstore.Store
	statuses *StatusRegistry
	l        *logrus.Logger
}

func NewExporter(store *mailstore.Store, statuses *StatusRegistry) *Exporter {
	return &Exporter{
		connect:  defaultConnector,
		resolver: imap.NewDiscoverer(),
		store:    store,
		statuses: statuses,
		l:        logging.Logger(logging.Sync),
	}
}

// Start begins an export as a background task and returns immediately. A nil
// mailboxes slice means every folder known locally for the source account;
// an explicitly empty slice exports nothing. Returns ErrAlreadyRunning if
// this exact pair is already exporting.
func (e *Exporter) Start(source, target models.Account, targetPassword string, mailboxes []string) error {
	if !e.statuses.TryStart(ExportID(source.ID, target.ID)) {
		return ErrAlreadyRunning
	}

	go e.run(source, target, targetPassword, mailboxes)
	return nil
}

// Status returns the operation record for the export id, if one exists.
func (e *Exporter) Status(exportID string) (Operation, bool) {
	return e.statuses.Get(exportID)
}

func (e *Exporter) run(source, target models.Account, targetPassword string, mailboxes []string) {
	key := ExportID(source.ID, target.ID)
	l := e.l.WithFields(logrus.Fields{"source": source.Email, "target": target.Email})
	defer func() {
		if r := recover(); r != nil {
			l.WithField("panic", r).Error("Export crashed")
			e.statuses.Fail(key, fmt.Sprintf("export crashed: %v", r))
		}
	}()
	l.Info("Export started")

	if mailboxes == nil {
		var err error
		mailboxes, err = e.store.ListLocalFolders(source.Email)
		if err != nil {
			l.WithError(err).Error("Export failed to list local folders")
			e.statuses.Fail(key, err.Error())
			return
		}
	}

	result := models.ExportResult{
		SourceEmail:  source.Email,
		TargetEmail:  target.Email,
		MailboxCount: len(mailboxes),
	}

	if len(mailboxes) == 0 {
		result.Message = "no mailboxes to export"
		e.statuses.Complete(key, result)
		l.Info("Export completed, nothing to do")
		return
	}

	host := target.Host
	if host == "" {
		host = e.resolver.DiscoverHost(target.Email)
	}

	session, err := e.connect(imap.Config{
		Host:     host,
		Port:     target.Port,
		Username: target.Username,
		Password: targetPassword,
		TLS:      target.TLS,
	})
	if err != nil {
		l.WithError(err).Error("Export failed to connect to target")
		e.statuses.Fail(key, err.Error())
		return
	}
	defer session.Close()

	for _, boxName := range mailboxes {
		folderResult := e.exportFolder(session, source.Email, boxName)
		result.TotalExported += folderResult.Exported
		result.Folders = append(result.Folders, folderResult)
	}

	e.statuses.Complete(key, result)
	l.WithField("exported", result.TotalExported).Info("Export completed")
}

// exportFolder replays one folder into the target session. A missing or
// empty local folder is skipped; only a failure to read the local store
// fails the folder. Per-message append failures are counted out, not fatal.
func (e *Exporter) exportFolder(session Session, sourceEmail, boxName string) models.FolderExportResult {
	l := e.l.WithFields(logrus.Fields{"source": sourceEmail, "folder": boxName})

	messages, err := e.store.ReadMessages(sourceEmail, boxName)
	if err != nil {
		l.WithError(err).Error("Could not read stored folder")
		return models.FolderExportResult{
			Mailbox: boxName,
			Status:  models.ExportStatusFailed,
			Error:   err.Error(),
		}
	}

	if len(messages) == 0 {
		l.Info("Nothing stored locally, skipping folder")
		return models.FolderExportResult{
			Mailbox: boxName,
			Status:  models.ExportStatusSkipped,
		}
	}

	// An "already exists" rejection is success; any other create failure is
	// only logged and the appends proceed regardless.
	if err := session.CreateFolder(boxName); err != nil {
		l.WithError(err).Warn("Could not create target folder")
	}

	exported := 0
	for i := range messages {
		msg := &messages[i]

		raw, err := codec.Encode(msg)
		if err != nil {
			l.WithError(err).WithField("uid", msg.UID).Warn("Skipping unencodable message")
			continue
		}

		if err := session.Append(boxName, raw, msg.Flags, msg.Date); err != nil {
			l.WithError(err).WithField("uid", msg.UID).Warn("Could not append message")
			continue
		}
		exported++
	}

	l.WithFields(logrus.Fields{"total": len(messages), "exported": exported}).Info("Folder exported")
	return models.FolderExportResult{
		Mailbox:  boxName,
		Total:    len(messages),
		Exported: exported,
		Status:   models.ExportStatusSuccess,
	}
}
