package models

import "time"

// Message is one downloaded mail message. Records are immutable once written:
// a re-sync replaces the whole folder collection instead of merging into it.
//
// UID is the server-assigned identifier, scoped to the folder it came from.
// It is only stable across re-syncs if the server keeps its UIDVALIDITY,
// which not every provider does.
type Message struct {
	UID         uint32       `json:"uid"`
	Flags       []string     `json:"flags,omitempty"`
	Subject     string       `json:"subject"`
	From        string       `json:"from,omitempty"`
	To          string       `json:"to,omitempty"`
	Date        time.Time    `json:"date"`
	Text        string       `json:"text,omitempty"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment describes an attachment by metadata only. The content bytes are
// not persisted, so a backup is lossy with respect to attachments and an
// export cannot restore them.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// MailboxSummary is the lightweight index of a stored folder. It is a pure
// projection of the message collection and is regenerated on every write,
// never edited on its own.
type MailboxSummary struct {
	BoxName      string         `json:"boxName"`
	MessageCount int            `json:"messageCount"`
	DownloadedAt time.Time      `json:"downloadedAt"`
	Messages     []SummaryEntry `json:"messages"`
}

// SummaryEntry is the per-message slice of a summary.
type SummaryEntry struct {
	UID     uint32    `json:"uid"`
	Subject string    `json:"subject"`
	From    string    `json:"from,omitempty"`
	Date    time.Time `json:"date"`
	Flags   []string  `json:"flags,omitempty"`
}
