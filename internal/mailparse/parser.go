package mailparse

import (
	"html"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	"signin-token-sync/internal/models"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

var (
	addressRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	codeRe    = regexp.MustCompile(`\b\d{6}\b`)
	spaceRe   = regexp.MustCompile(`\s+`)

	stripPolicy = bluemonday.StrictPolicy()
)

// Parse converts a fetched IMAP message into an Email
func Parse(msg *imap.Message) (*models.Email, error) {
	section := &imap.BodySectionName{}
	r := msg.GetBody(section)
	if r == nil {
		return nil, io.EOF
	}

	email, err := ParseReader(r)
	if err != nil {
		return nil, err
	}
	email.UID = msg.Uid
	email.ReceivedAt = msg.InternalDate

	return email, nil
}

// ParseReader parses a raw RFC 5322 message. ReceivedAt falls back to the Date header and is left to the caller to overwrite with the server receive time.
func ParseReader(r io.Reader) (*models.Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, err
	}

	email := &models.Email{
		TraceID: uuid.New().String(),
	}

	header := mr.Header

	email.From = extractEmailAddress(header.Get("From"))

	if toList, err := header.AddressList("To"); err == nil {
		for _, addr := range toList {
			email.To = append(email.To, addr.Address)
		}
	}

	decodedSubject, err := DecodeHeader(header.Get("Subject"))
	if err != nil {
		return nil, err
	}
	email.Subject = decodedSubject

	if date, err := header.Date(); err == nil {
		email.ReceivedAt = date
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := h.ContentType()
		if err != nil {
			continue
		}

		switch contentType {
		case "text/plain":
			if email.BodyText != "" {
				continue
			}
			body, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			email.BodyText = string(body)
		case "text/html":
			if email.BodyHTML != "" {
				continue
			}
			body, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			email.BodyHTML = string(body)
		}
	}

	return email, nil
}

// Simple regex to extract email address from "From" header, which may contain name and email
func extractEmailAddress(fromHeader string) string {
	return addressRe.FindString(fromHeader)
}

// DecodeHeader decodes MIME-encoded headers (e.g., "=?UTF-8?B?...?=") to plain text
func DecodeHeader(encoded string) (string, error) {
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(encoded)
	if err != nil {
		return "", err
	}
	return decoded, nil
}

// ExtractCode returns the first standalone 6-digit number in text
func ExtractCode(text string) (string, bool) {
	code := codeRe.FindString(text)
	return code, code != ""
}

// HTMLToText strips markup, keeping element boundaries as whitespace so adjacent text nodes stay separate words
func HTMLToText(body string) string {
	spaced := strings.ReplaceAll(body, "<", " <")
	text := html.UnescapeString(stripPolicy.Sanitize(spaced))
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// CodeFromEmail looks for a verification code in the plaintext body, then the HTML body, then the subject line
func CodeFromEmail(email *models.Email) (string, bool) {
	if code, ok := ExtractCode(email.BodyText); ok {
		return code, true
	}
	if email.BodyHTML != "" {
		if code, ok := ExtractCode(HTMLToText(email.BodyHTML)); ok {
			return code, true
		}
	}
	return ExtractCode(email.Subject)
}

// IsFresh reports whether the email was received at or after cutoff. Emails without a receive time are never fresh.
func IsFresh(email *models.Email, cutoff time.Time) bool {
	if email.ReceivedAt.IsZero() {
		return false
	}
	return !email.ReceivedAt.Before(cutoff)
}
