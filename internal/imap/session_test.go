package imap

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imapvault/server/internal/testutil"
)

func TestConnect(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)

	t.Run("logs in with valid credentials", func(t *testing.T) {
		session, err := Connect(Config{
			Host:     srv.Host(),
			Port:     srv.Port(),
			Username: testutil.Username,
			Password: testutil.Password,
		})
		require.NoError(t, err)
		session.Close()
	})

	t.Run("returns AuthError for rejected credentials", func(t *testing.T) {
		_, err := Connect(Config{
			Host:     srv.Host(),
			Port:     srv.Port(),
			Username: testutil.Username,
			Password: "wrong-password",
		})
		require.Error(t, err)

		var authErr *AuthError
		assert.True(t, errors.As(err, &authErr))
	})

	t.Run("returns ConnectError for unreachable host", func(t *testing.T) {
		_, err := Connect(Config{
			Host:     "127.0.0.1",
			Port:     1, // nothing listens here
			Username: testutil.Username,
			Password: testutil.Password,
		})
		require.Error(t, err)

		var connErr *ConnectError
		assert.True(t, errors.As(err, &connErr))
	})
}

func connectTestSession(t *testing.T, srv *testutil.TestIMAPServer) *Session {
	t.Helper()

	session, err := Connect(Config{
		Host:     srv.Host(),
		Port:     srv.Port(),
		Username: testutil.Username,
		Password: testutil.Password,
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func TestListFolders(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	srv.CreateFolder(t, "Archive")

	session := connectTestSession(t, srv)

	folders, err := session.ListFolders()
	require.NoError(t, err)
	assert.Contains(t, folders, "INBOX")
	assert.Contains(t, folders, "Archive")
}

func TestCreateFolder(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	session := connectTestSession(t, srv)

	t.Run("creates a new folder", func(t *testing.T) {
		err := session.CreateFolder("Backup")
		require.NoError(t, err)

		folders, err := session.ListFolders()
		require.NoError(t, err)
		assert.Contains(t, folders, "Backup")
	})

	t.Run("tolerates an existing folder", func(t *testing.T) {
		err := session.CreateFolder("Backup")
		assert.NoError(t, err)
	})
}

func TestFetchAllMessages(t *testing.T) {
	t.Run("streams every message with flags and body", func(t *testing.T) {
		srv := testutil.NewTestIMAPServer(t)
		srv.AddMessage(t, "INBOX", "<first@test>", "First", "a@example.com", "b@example.com", "hello", time.Now())
		srv.AddMessage(t, "INBOX", "<second@test>", "Second", "a@example.com", "b@example.com", "world", time.Now())

		session := connectTestSession(t, srv)

		results, err := session.FetchAllMessages("INBOX")
		require.NoError(t, err)

		var raws []*RawMessage
		for result := range results {
			require.NoError(t, result.Err)
			raws = append(raws, result.Raw)
		}

		// The memory backend seeds INBOX with one message of its own.
		require.Len(t, raws, 3)
		for _, raw := range raws {
			assert.NotZero(t, raw.UID)
			assert.NotEmpty(t, raw.Body)
		}
	})

	t.Run("returns a closed stream for an empty folder", func(t *testing.T) {
		srv := testutil.NewTestIMAPServer(t)
		srv.CreateFolder(t, "Empty")

		session := connectTestSession(t, srv)

		results, err := session.FetchAllMessages("Empty")
		require.NoError(t, err)

		count := 0
		for range results {
			count++
		}
		assert.Equal(t, 0, count)
	})

	t.Run("fails for a missing folder", func(t *testing.T) {
		srv := testutil.NewTestIMAPServer(t)
		session := connectTestSession(t, srv)

		_, err := session.FetchAllMessages("NoSuchFolder")
		assert.Error(t, err)
	})
}

func TestAppend(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	session := connectTestSession(t, srv)

	require.NoError(t, session.CreateFolder("Restored"))

	raw := []byte("Message-ID: <restored@test>\r\n" +
		"From: a@example.com\r\n" +
		"To: b@example.com\r\n" +
		"Subject: Restored\r\n" +
		"\r\n" +
		"restored body\r\n")

	err := session.Append("Restored", raw, []string{"\\Seen", "\\Recent"}, time.Time{})
	require.NoError(t, err)

	results, err := session.FetchAllMessages("Restored")
	require.NoError(t, err)

	var raws []*RawMessage
	for result := range results {
		require.NoError(t, result.Err)
		raws = append(raws, result.Raw)
	}

	require.Len(t, raws, 1)
	assert.Contains(t, string(raws[0].Body), "restored body")
	assert.Contains(t, raws[0].Flags, "\\Seen")
	assert.NotContains(t, raws[0].Flags, "\\Recent")
}

func TestWithFolderLock(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	session := connectTestSession(t, srv)

	t.Run("runs the function and returns its error", func(t *testing.T) {
		sentinel := errors.New("boom")
		err := session.WithFolderLock("INBOX", func() error {
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("serializes work on the same folder", func(t *testing.T) {
		inFirst := make(chan struct{})
		release := make(chan struct{})
		var order []string
		var mu sync.Mutex

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			_ = session.WithFolderLock("INBOX", func() error {
				close(inFirst)
				<-release
				mu.Lock()
				order = append(order, "first")
				mu.Unlock()
				return nil
			})
		}()

		go func() {
			defer wg.Done()
			<-inFirst
			_ = session.WithFolderLock("INBOX", func() error {
				mu.Lock()
				order = append(order, "second")
				mu.Unlock()
				return nil
			})
		}()

		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("does not block work on a different folder", func(t *testing.T) {
		done := make(chan struct{})
		release := make(chan struct{})

		go func() {
			_ = session.WithFolderLock("Left", func() error {
				<-release
				return nil
			})
		}()

		go func() {
			_ = session.WithFolderLock("Right", func() error {
				close(done)
				return nil
			})
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on one folder blocked another folder")
		}
		close(release)
	})
}
