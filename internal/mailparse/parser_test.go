package mailparse

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"signin-token-sync/internal/models"

	"github.com/emersion/go-imap"
)

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "Plain ASCII",
			input:    "Hello World",
			expected: "Hello World",
			wantErr:  false,
		},
		{
			name:     "UTF-8 encoded",
			input:    "=?UTF-8?Q?Important_:_comment_mettre_=C3=A0_jour?=",
			expected: "Important : comment mettre à jour",
			wantErr:  false,
		},
		{
			name:     "ISO-8859-1 encoded",
			input:    "=?ISO-8859-1?Q?Caf=E9?=",
			expected: "Café",
			wantErr:  false,
		},
		{
			name:     "Base64 encoded",
			input:    "=?UTF-8?B?SGVsbG8gV29ybGQ=?=",
			expected: "Hello World",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHeader(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeHeader() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("DecodeHeader() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExtractEmailAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Simple email",
			input:    "no-reply@sarvinarck.com",
			expected: "no-reply@sarvinarck.com",
		},
		{
			name:     "Email with name",
			input:    "Sarvinarck <no-reply@sarvinarck.com>",
			expected: "no-reply@sarvinarck.com",
		},
		{
			name:     "Email with quotes",
			input:    `"Sarvinarck Team" <no-reply@sarvinarck.com>`,
			expected: "no-reply@sarvinarck.com",
		},
		{
			name:     "No email",
			input:    "Just some text",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractEmailAddress(tt.input)
			if got != tt.expected {
				t.Errorf("extractEmailAddress() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
		found    bool
	}{
		{name: "Subject line", text: "Verification Code: 482913", expected: "482913", found: true},
		{name: "Standalone number", text: "482913", expected: "482913", found: true},
		{name: "Trailing punctuation", text: "Your code is 482913.", expected: "482913", found: true},
		{name: "Seven digits", text: "code 1234567", found: false},
		{name: "Five digits", text: "code 12345", found: false},
		{name: "Glued to letters", text: "ref482913x", found: false},
		{name: "First of two", text: "Use 111111 or 222222", expected: "111111", found: true},
		{name: "Empty", text: "", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCode(tt.text)
			if ok != tt.found || got != tt.expected {
				t.Errorf("ExtractCode(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.expected, tt.found)
			}
		})
	}
}

func TestHTMLToText(t *testing.T) {
	got := HTMLToText(`<html><head><style>p{color:red}</style></head><body><p>Your code</p><p><b>482913</b></p><p>Tom &amp; Jerry</p></body></html>`)

	if !strings.Contains(got, "Your code 482913") {
		t.Errorf("HTMLToText() = %q, expected separated words", got)
	}
	if strings.Contains(got, "<") || strings.Contains(got, "color") {
		t.Errorf("HTMLToText() = %q, expected markup and styles removed", got)
	}
	if !strings.Contains(got, "Tom & Jerry") {
		t.Errorf("HTMLToText() = %q, expected entities unescaped", got)
	}
}

func TestCodeFromEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    models.Email
		expected string
		found    bool
	}{
		{
			name:     "Plaintext wins",
			email:    models.Email{BodyText: "code 111111", BodyHTML: "<p>222222</p>", Subject: "333333"},
			expected: "111111",
			found:    true,
		},
		{
			name:     "HTML fallback",
			email:    models.Email{BodyText: "no code here", BodyHTML: "<td>Code</td><td>222222</td>", Subject: "Welcome"},
			expected: "222222",
			found:    true,
		},
		{
			name:     "Subject fallback",
			email:    models.Email{Subject: "Verification Code: 482913"},
			expected: "482913",
			found:    true,
		},
		{
			name:  "Nothing",
			email: models.Email{BodyText: "hello", Subject: "hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CodeFromEmail(&tt.email)
			if ok != tt.found || got != tt.expected {
				t.Errorf("CodeFromEmail() = (%q, %v), want (%q, %v)", got, ok, tt.expected, tt.found)
			}
		})
	}
}

func TestIsFresh(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if IsFresh(&models.Email{}, cutoff) {
		t.Error("Expected email without receive time to be stale")
	}
	if IsFresh(&models.Email{ReceivedAt: cutoff.Add(-time.Second)}, cutoff) {
		t.Error("Expected email before cutoff to be stale")
	}
	if !IsFresh(&models.Email{ReceivedAt: cutoff}, cutoff) {
		t.Error("Expected email at cutoff to be fresh")
	}
}

func TestParseReader(t *testing.T) {
	raw := "From: Sarvinarck <no-reply@sarvinarck.com>\r\n" +
		"To: user@example.com\r\n" +
		"Subject: =?UTF-8?B?VmVyaWZpY2F0aW9uIENvZGU=?=\r\n" +
		"Date: Sun, 01 Mar 2026 12:00:00 +0000\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
		"\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Your code is 482913\r\n" +
		"--b1\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Your code is <b>482913</b></p>\r\n" +
		"--b1--\r\n"

	email, err := ParseReader(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ParseReader() error: %v", err)
	}

	if email.From != "no-reply@sarvinarck.com" {
		t.Errorf("From = %q", email.From)
	}
	if len(email.To) != 1 || email.To[0] != "user@example.com" {
		t.Errorf("To = %v", email.To)
	}
	if email.Subject != "Verification Code" {
		t.Errorf("Subject = %q", email.Subject)
	}
	if !strings.Contains(email.BodyText, "482913") {
		t.Errorf("BodyText = %q", email.BodyText)
	}
	if !strings.Contains(email.BodyHTML, "<b>482913</b>") {
		t.Errorf("BodyHTML = %q", email.BodyHTML)
	}
	if !email.ReceivedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ReceivedAt = %v", email.ReceivedAt)
	}
	if email.TraceID == "" {
		t.Error("Expected a trace id")
	}
}

func TestParsePeekedFetch(t *testing.T) {
	raw := "From: no-reply@sarvinarck.com\r\n" +
		"Subject: Verification Code: 482913\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Code inside\r\n"
	received := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// a BODY.PEEK[] fetch comes back labelled BODY[]
	msg := imap.NewMessage(3, nil)
	msg.Uid = 1042
	msg.InternalDate = received
	msg.Body[&imap.BodySectionName{}] = bytes.NewBufferString(raw)

	email, err := Parse(msg)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if email.UID != 1042 {
		t.Errorf("UID = %d, want 1042", email.UID)
	}
	if !email.ReceivedAt.Equal(received) {
		t.Errorf("ReceivedAt = %v", email.ReceivedAt)
	}
	if email.Subject != "Verification Code: 482913" {
		t.Errorf("Subject = %q", email.Subject)
	}
}
