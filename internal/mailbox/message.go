// Package mailbox turns stored RFC 5322 messages into rule-engine records.
//
// Mail protocol access is out of scope: messages are read from *.eml files
// that an external fetcher (or an export from a mail client) placed in a
// directory.
package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"

	"github.com/solatis/inboxkeeper/internal/types"
)

// Message is a parsed message.
type Message struct {
	ID          string // Message-ID without angle brackets, or the file name
	Name        string // file name within the mailbox directory
	Subject     string
	From        string
	FromName    string
	To          []string
	Cc          []string
	Date        time.Time
	TextBody    string
	HTMLBody    string
	Attachments []string
	Headers     map[string]string // lower-cased name, first occurrence
	Size        int64
}

// Body returns the plain-text body, or the HTML body rendered as text when
// the message has no text part.
func (m *Message) Body() string {
	if m.TextBody != "" {
		return m.TextBody
	}
	if m.HTMLBody != "" {
		return html2text.HTML2Text(m.HTMLBody)
	}
	return ""
}

// Record builds the rule-engine view of the message.
func (m *Message) Record() types.Record {
	firstAttachment := ""
	if len(m.Attachments) > 0 {
		firstAttachment = m.Attachments[0]
	}
	date := ""
	if !m.Date.IsZero() {
		date = m.Date.UTC().Format(time.RFC3339)
	}

	return types.Record{
		"message_id":       m.ID,
		"subject":          m.Subject,
		"from":             m.From,
		"sender":           m.From,
		"from_name":        m.FromName,
		"to":               m.To,
		"cc":               m.Cc,
		"date":             date,
		"body":             m.Body(),
		"html_body":        m.HTMLBody,
		"size":             m.Size,
		"has_attachment":   len(m.Attachments) > 0,
		"attachment_name":  firstAttachment,
		"attachment_names": m.Attachments,
		"headers":          m.Headers,
	}
}

// Parse reads one raw message. name identifies the message when it has no
// Message-ID header. A malformed body part returns the message parsed so far
// together with the error.
func Parse(name string, raw []byte) (*Message, error) {
	msg := &Message{
		ID:      name,
		Name:    name,
		Size:    int64(len(raw)),
		Headers: make(map[string]string),
	}

	// Unknown charsets leave the affected text undecoded but are not fatal
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message %s: %w", name, err)
	}
	defer reader.Close()

	fields := reader.Header.Fields()
	for fields.Next() {
		key := strings.ToLower(fields.Key())
		if _, seen := msg.Headers[key]; seen {
			continue
		}
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		msg.Headers[key] = value
	}

	if id, err := reader.Header.MessageID(); err == nil && id != "" {
		msg.ID = id
	}
	if subject, err := reader.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := reader.Header.Date(); err == nil {
		msg.Date = date
	}
	if from, err := reader.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = strings.ToLower(from[0].Address)
		msg.FromName = from[0].Name
	}
	msg.To = addresses(reader.Header, "To")
	msg.Cc = addresses(reader.Header, "Cc")

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return msg, fmt.Errorf("failed to read part of %s: %w", name, err)
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
				msg.TextBody = appendPart(msg.TextBody, string(body))
			case strings.HasPrefix(mediaType, "text/html"):
				msg.HTMLBody = appendPart(msg.HTMLBody, string(body))
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			if strings.TrimSpace(filename) == "" {
				filename = "attachment"
			}
			msg.Attachments = append(msg.Attachments, filename)
		}
	}

	return msg, nil
}

func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, addr := range list {
		out = append(out, strings.ToLower(addr.Address))
	}
	return out
}

func appendPart(existing, part string) string {
	if existing == "" {
		return part
	}
	return existing + "\n" + part
}
