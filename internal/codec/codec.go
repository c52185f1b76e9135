// Package codec converts between raw RFC 822 message bytes as they travel
// over IMAP and the structured Message record that gets persisted. Parsing
// and encoding are intentionally lossy for attachments: only filename, media
// type and size survive, never the content.
package codec

import (
	"bytes"
	"fmt"
	"net/mail"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/imapvault/server/internal/models"
)

// Placeholder addresses used when a stored header does not parse as an
// address. IMAP APPEND needs a syntactically complete message, so encoding
// must not fail just because the original sender header was odd; the original
// text is kept as the display name.
const (
	fallbackSender    = "unknown-sender@localhost"
	fallbackRecipient = "undisclosed-recipients@localhost"
)

// Parse turns raw message bytes into a Message record. The uid and flags come
// from the IMAP fetch that produced the bytes, not from the bytes themselves.
func Parse(raw []byte, uid uint32, flags []string) (*models.Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("could not parse message %d: %w", uid, err)
	}

	msg := &models.Message{
		UID:     uid,
		Flags:   flags,
		Subject: env.GetHeader("Subject"),
		From:    env.GetHeader("From"),
		To:      env.GetHeader("To"),
		Text:    env.Text,
		HTML:    env.HTML,
	}

	if dateHeader := env.GetHeader("Date"); dateHeader != "" {
		if date, err := mail.ParseDate(dateHeader); err == nil {
			msg.Date = date.UTC()
		}
	}

	for _, part := range env.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
		})
	}

	return msg, nil
}

// Encode serializes a stored Message back into transmittable bytes for IMAP
// APPEND. Subject, sender, recipient, date and whichever body variants exist
// round-trip through Parse; attachment content is gone and is not recreated.
func Encode(msg *models.Message) ([]byte, error) {
	builder := enmime.Builder().
		Subject(msg.Subject).
		Date(encodeDate(msg.Date))

	if from, err := mail.ParseAddress(msg.From); err == nil {
		builder = builder.From(from.Name, from.Address)
	} else {
		builder = builder.From(msg.From, fallbackSender)
	}

	if recipients, err := mail.ParseAddressList(msg.To); err == nil {
		builder = builder.ToAddrs(dereference(recipients))
	} else {
		builder = builder.To(msg.To, fallbackRecipient)
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		builder = builder.Text([]byte(msg.Text)).HTML([]byte(msg.HTML))
	case msg.HTML != "":
		builder = builder.HTML([]byte(msg.HTML))
	case msg.Text != "":
		builder = builder.Text([]byte(msg.Text))
	default:
		builder = builder.Text([]byte("(no content)"))
	}

	part, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build message %d: %w", msg.UID, err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("could not encode message %d: %w", msg.UID, err)
	}

	return buf.Bytes(), nil
}

func encodeDate(date time.Time) time.Time {
	if date.IsZero() {
		return time.Now()
	}
	return date
}

func dereference(addresses []*mail.Address) []mail.Address {
	result := make([]mail.Address, 0, len(addresses))
	for _, address := range addresses {
		if address != nil {
			result = append(result, *address)
		}
	}
	return result
}
