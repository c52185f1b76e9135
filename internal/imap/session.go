// Package imap drives one authenticated IMAP protocol session: folder
// enumeration, locked folder downloads, folder creation and message append.
// Parsing the downloaded bytes is the codec's job; this package only moves
// raw messages.
package imap

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	imapwire "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/imapvault/server/internal/logging"
)

// RawMessage is one message as delivered by the server: identifier, state
// flags and the unparsed RFC 822 bytes.
type RawMessage struct {
	UID   uint32
	Flags []string
	Body  []byte
}

// FetchResult is one item of a folder fetch stream. Either Raw is set, or
// Err explains why this item could not be produced. A result with Err set
// and a zero UID reports a failure of the fetch command itself; the stream
// ends after such a result.
type FetchResult struct {
	UID uint32
	Raw *RawMessage
	Err error
}

// Session owns one authenticated connection. Protocol commands on a session
// are issued sequentially; the per-folder locks additionally guarantee that
// only one caller at a time works inside any given folder.
type Session struct {
	conn *client.Client
	host string

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	l *logrus.Logger
}

// Connect dials and authenticates a session. Transport failures surface as
// *ConnectError, rejected credentials as *AuthError.
func Connect(cfg Config) (*Session, error) {
	conn, err := dial(cfg)
	if err != nil {
		return nil, err
	}

	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		_ = conn.Logout()
		return nil, &AuthError{Addr: cfg.Addr(), Err: err}
	}

	s := &Session{
		conn:  conn,
		host:  cfg.Host,
		locks: make(map[string]*sync.Mutex),
		l:     logging.Logger(logging.IMAP),
	}
	s.l.WithField("host", cfg.Host).Debug("Logged in")
	return s, nil
}

// ListFolders returns all folder paths on the server, flattened: hierarchy
// is implicit in the path separator, the order is whatever the server sent.
func (s *Session) ListFolders() ([]string, error) {
	mailboxes := make(chan *imapwire.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- s.conn.List("", "*", mailboxes)
	}()

	var folders []string
	for m := range mailboxes {
		folders = append(folders, m.Name)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("could not list folders: %w", err)
	}

	return folders, nil
}

// WithFolderLock runs fn as the sole owner of the named folder on this
// session. The lock is released on every exit path, including fn failing.
func (s *Session) WithFolderLock(boxName string, fn func() error) error {
	lock := s.folderLock(boxName)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (s *Session) folderLock(boxName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[boxName]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[boxName] = lock
	}
	return lock
}

// FetchAllMessages selects the folder read-only and streams every message in
// it. Fetching uses BODY.PEEK so a backup run does not mark anything as
// seen. Consumers must drain the returned channel.
func (s *Session) FetchAllMessages(boxName string) (<-chan FetchResult, error) {
	mbox, err := s.conn.Select(boxName, true)
	if err != nil {
		return nil, fmt.Errorf("could not select folder %s: %w", boxName, err)
	}

	out := make(chan FetchResult)

	if mbox.Messages == 0 {
		close(out)
		return out, nil
	}

	seqSet := new(imapwire.SeqSet)
	seqSet.AddRange(1, mbox.Messages)

	section := &imapwire.BodySectionName{Peek: true}
	items := []imapwire.FetchItem{
		imapwire.FetchUid,
		imapwire.FetchFlags,
		section.FetchItem(),
	}

	messages := make(chan *imapwire.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- s.conn.Fetch(seqSet, items, messages)
	}()

	go func() {
		defer close(out)

		for msg := range messages {
			body, err := readBodySection(msg, section)
			if err != nil {
				out <- FetchResult{UID: msg.Uid, Err: err}
				continue
			}
			out <- FetchResult{
				UID: msg.Uid,
				Raw: &RawMessage{UID: msg.Uid, Flags: msg.Flags, Body: body},
			}
		}

		if err := <-done; err != nil {
			out <- FetchResult{Err: fmt.Errorf("could not fetch messages from %s: %w", boxName, err)}
		}
	}()

	return out, nil
}

func readBodySection(msg *imapwire.Message, section *imapwire.BodySectionName) ([]byte, error) {
	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("server returned no body for message %d", msg.Uid)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read body of message %d: %w", msg.Uid, err)
	}
	return body, nil
}

// CreateFolder creates a folder on the server. A rejection because the
// folder already exists counts as success.
func (s *Session) CreateFolder(boxName string) error {
	if err := s.conn.Create(boxName); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "exist") {
			s.l.WithField("folder", boxName).Debug("Folder already exists")
			return nil
		}
		return fmt.Errorf("could not create folder %s: %w", boxName, err)
	}
	return nil
}

// Append uploads one raw message into the folder, preserving flags and the
// internal date. The \Recent flag is server-managed and stripped before the
// append.
func (s *Session) Append(boxName string, raw []byte, flags []string, date time.Time) error {
	if date.IsZero() {
		date = time.Now()
	}

	if err := s.conn.Append(boxName, appendableFlags(flags), date, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("could not append to %s: %w", boxName, err)
	}
	return nil
}

func appendableFlags(flags []string) []string {
	result := make([]string, 0, len(flags))
	for _, flag := range flags {
		if flag == imapwire.RecentFlag {
			continue
		}
		result = append(result, flag)
	}
	return result
}

// Close logs out. It is attempted on every exit path of an operation, and a
// failed logout is only worth a log line, the operation outcome stands.
func (s *Session) Close() {
	if err := s.conn.Logout(); err != nil {
		s.l.WithError(err).WithField("host", s.host).Debug("Logout failed")
	}
}
