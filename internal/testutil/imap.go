package testutil

import (
	"bytes"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// Username and Password are the credentials of the memory backend's built-in
// user.
const (
	Username = "username"
	Password = "password"
)

// TestIMAPServer is an in-memory IMAP server for tests. The memory backend
// ships with one user owning an INBOX.
type TestIMAPServer struct {
	Server  *server.Server
	Address string
	Backend *memory.Backend
	cleanup func()
}

// NewTestIMAPServer starts an in-memory IMAP server on a random loopback
// port. It is shut down automatically when the test finishes.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()

	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	addr := listener.Addr().String()

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("IMAP server error: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	srv := &TestIMAPServer{
		Server:  s,
		Address: addr,
		Backend: be,
		cleanup: func() { _ = s.Close() },
	}
	t.Cleanup(srv.Close)
	return srv
}

// Close shuts down the test IMAP server.
func (s *TestIMAPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Host returns the listen host of the server.
func (s *TestIMAPServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Address)
	return host
}

// Port returns the listen port of the server.
func (s *TestIMAPServer) Port() int {
	_, portStr, _ := net.SplitHostPort(s.Address)
	var port int
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	return port
}

// Connect creates a logged-in IMAP client connection to the test server.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}

	if err := client.Login(Username, Password); err != nil {
		_ = client.Logout()
		t.Fatalf("Failed to login: %v", err)
	}

	cleanup := func() {
		_ = client.Logout()
	}

	return client, cleanup
}

// CreateFolder creates a folder for the default user.
func (s *TestIMAPServer) CreateFolder(t *testing.T, folderName string) {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if err := client.Create(folderName); err != nil {
		t.Fatalf("Failed to create folder %s: %v", folderName, err)
	}
}

// AddMessage appends a plain-text message to the folder and returns the UID
// the server assigned.
func (s *TestIMAPServer) AddMessage(t *testing.T, folderName, messageID, subject, from, to, body string, sentAt time.Time) uint32 {
	t.Helper()

	raw := fmt.Sprintf(`Message-ID: %s
Date: %s
From: %s
To: %s
Subject: %s
Content-Type: text/plain; charset=utf-8

%s
`, messageID, sentAt.Format(time.RFC1123Z), from, to, subject, body)

	return s.AddRawMessage(t, folderName, messageID, []byte(raw))
}

// AddRawMessage appends raw message bytes to the folder and returns the UID
// the server assigned. The message must carry the given Message-ID header,
// which is used to find the UID after the append.
func (s *TestIMAPServer) AddRawMessage(t *testing.T, folderName, messageID string, raw []byte) uint32 {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(folderName, false); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}

	flags := []string{imap.SeenFlag}
	if err := client.Append(folderName, flags, time.Now(), bytes.NewReader(raw)); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-ID", messageID)
	uids, err := client.UidSearch(criteria)
	if err != nil {
		t.Fatalf("Failed to search for message: %v", err)
	}

	if len(uids) == 0 {
		t.Fatalf("Message not found after append")
	}

	return uids[0]
}
