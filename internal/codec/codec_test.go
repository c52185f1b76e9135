package codec

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imapvault/server/internal/models"
)

func plainMessage(subject, from, to, date, body string) []byte {
	return []byte(strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"Date: " + date,
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n"))
}

func TestParsePlainText(t *testing.T) {
	raw := plainMessage(
		"Quarterly report",
		"\"Alice Archer\" <alice@example.com>",
		"\"Bob Builder\" <bob@example.com>",
		"Tue, 10 Mar 2026 14:30:00 +0100",
		"Please find the numbers below.",
	)

	msg, err := Parse(raw, 7, []string{"\\Seen"})
	require.NoError(t, err)

	assert.Equal(t, uint32(7), msg.UID)
	assert.Equal(t, []string{"\\Seen"}, msg.Flags)
	assert.Equal(t, "Quarterly report", msg.Subject)
	assert.Equal(t, "\"Alice Archer\" <alice@example.com>", msg.From)
	assert.Equal(t, "\"Bob Builder\" <bob@example.com>", msg.To)
	assert.Equal(t, "Please find the numbers below.", strings.TrimSpace(msg.Text))
	assert.Empty(t, msg.HTML)
	assert.Empty(t, msg.Attachments)

	expected := time.Date(2026, 3, 10, 13, 30, 0, 0, time.UTC)
	assert.True(t, msg.Date.Equal(expected), "expected %v, got %v", expected, msg.Date)
}

func TestParseMultipartWithAttachment(t *testing.T) {
	boundary := "deadbeefcafe"
	raw := []byte(strings.Join([]string{
		"From: alice@example.com",
		"To: bob@example.com",
		"Subject: With attachment",
		"Date: Mon, 02 Feb 2026 09:00:00 +0000",
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q", boundary),
		"",
		"--" + boundary,
		"Content-Type: text/plain; charset=utf-8",
		"",
		"See the attached notes.",
		"--" + boundary,
		"Content-Type: application/pdf",
		"Content-Disposition: attachment; filename=\"notes.pdf\"",
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQKJcTl8uXrp/Og0MTGCg==",
		"--" + boundary + "--",
		"",
	}, "\r\n"))

	msg, err := Parse(raw, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, "With attachment", msg.Subject)
	assert.Equal(t, "See the attached notes.", strings.TrimSpace(msg.Text))
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "notes.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Greater(t, msg.Attachments[0].Size, int64(0))
}

func TestParseMessageWithoutBody(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: alice@example.com",
		"To: bob@example.com",
		"Subject: Headers only",
		"",
		"",
	}, "\r\n"))

	msg, err := Parse(raw, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "Headers only", msg.Subject)
	assert.Empty(t, msg.HTML)
}

func TestEncodeParseRoundTrip(t *testing.T) {
	date := time.Date(2026, 1, 15, 8, 45, 30, 0, time.UTC)

	tests := []struct {
		name string
		msg  models.Message
	}{
		{
			name: "text only",
			msg: models.Message{
				UID:     1,
				Subject: "Plain text",
				From:    "\"Alice Archer\" <alice@example.com>",
				To:      "\"Bob Builder\" <bob@example.com>",
				Date:    date,
				Text:    "Hello from the backup.",
			},
		},
		{
			name: "html only",
			msg: models.Message{
				UID:     2,
				Subject: "Rich text",
				From:    "\"Alice Archer\" <alice@example.com>",
				To:      "\"Bob Builder\" <bob@example.com>",
				Date:    date,
				HTML:    "<p>Hello from the <b>backup</b>.</p>",
			},
		},
		{
			name: "both variants",
			msg: models.Message{
				UID:     3,
				Subject: "Alternative",
				From:    "\"Alice Archer\" <alice@example.com>",
				To:      "\"Bob Builder\" <bob@example.com>",
				Date:    date,
				Text:    "Hello plain.",
				HTML:    "<p>Hello rich.</p>",
			},
		},
		{
			name: "unicode subject and body",
			msg: models.Message{
				UID:     4,
				Subject: "Überraschung 🎉",
				From:    "\"Alice Archer\" <alice@example.com>",
				To:      "\"Bob Builder\" <bob@example.com>",
				Date:    date,
				Text:    "Grüße aus dem Archiv.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(&tt.msg)
			require.NoError(t, err)

			parsed, err := Parse(raw, tt.msg.UID, tt.msg.Flags)
			require.NoError(t, err)

			assert.Equal(t, tt.msg.Subject, parsed.Subject)
			assert.Equal(t, tt.msg.From, parsed.From)
			assert.Equal(t, tt.msg.To, parsed.To)
			assert.True(t, parsed.Date.Truncate(time.Second).Equal(tt.msg.Date.Truncate(time.Second)),
				"expected %v, got %v", tt.msg.Date, parsed.Date)

			if tt.msg.Text != "" {
				assert.Equal(t, tt.msg.Text, strings.TrimSpace(parsed.Text))
			}
			if tt.msg.HTML != "" {
				assert.Equal(t, tt.msg.HTML, strings.TrimSpace(parsed.HTML))
			}
		})
	}
}

func TestEncodeWithoutBody(t *testing.T) {
	msg := models.Message{
		UID:     9,
		Subject: "Empty",
		From:    "alice@example.com",
		To:      "bob@example.com",
		Date:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	raw, err := Encode(&msg)
	require.NoError(t, err)

	parsed, err := Parse(raw, msg.UID, nil)
	require.NoError(t, err)
	assert.Equal(t, "(no content)", strings.TrimSpace(parsed.Text))
}

func TestEncodeUnparseableAddresses(t *testing.T) {
	msg := models.Message{
		UID:     5,
		Subject: "Odd headers",
		From:    "not an address",
		To:      "",
		Date:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Text:    "Body.",
	}

	raw, err := Encode(&msg)
	require.NoError(t, err)

	parsed, err := Parse(raw, msg.UID, nil)
	require.NoError(t, err)
	assert.Contains(t, parsed.From, fallbackSender)
	assert.Contains(t, parsed.To, fallbackRecipient)
}

func TestEncodeZeroDateUsesNow(t *testing.T) {
	msg := models.Message{
		UID:     6,
		Subject: "No date",
		From:    "alice@example.com",
		To:      "bob@example.com",
		Text:    "Body.",
	}

	before := time.Now().Add(-time.Minute)
	raw, err := Encode(&msg)
	require.NoError(t, err)

	parsed, err := Parse(raw, msg.UID, nil)
	require.NoError(t, err)
	assert.True(t, parsed.Date.After(before), "expected a current date, got %v", parsed.Date)
}
