package models

// Folder export statuses.
const (
	ExportStatusSuccess = "success"
	ExportStatusSkipped = "skipped"
	ExportStatusFailed  = "failed"
)

// FolderSyncResult is the outcome of downloading one folder during a sync.
// A folder-level failure is recorded here and does not abort the sync.
type FolderSyncResult struct {
	BoxName string `json:"boxName"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// SyncResult is the aggregate outcome of a whole-account sync.
type SyncResult struct {
	Email         string             `json:"email"`
	MailboxCount  int                `json:"mailboxCount"`
	TotalMessages int                `json:"totalMessages"`
	Folders       []FolderSyncResult `json:"results"`
}

// FolderExportResult is the outcome of replaying one folder into the target
// account. Exported counts per-message append successes independently, so it
// can be lower than Total without the folder being failed.
type FolderExportResult struct {
	Mailbox  string `json:"mailbox"`
	Total    int    `json:"total,omitempty"`
	Exported int    `json:"exported"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// ExportResult is the aggregate outcome of a cross-account export. The outer
// state is completed even if individual folders or messages failed; only a
// failure to reach the target account fails the operation itself.
type ExportResult struct {
	SourceEmail   string               `json:"sourceEmail"`
	TargetEmail   string               `json:"targetEmail"`
	MailboxCount  int                  `json:"mailboxCount"`
	TotalExported int                  `json:"totalExported"`
	Folders       []FolderExportResult `json:"results"`
	Message       string               `json:"message,omitempty"`
}
