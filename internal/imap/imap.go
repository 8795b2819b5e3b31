package imap

import (
	"time"

	"github.com/emersion/go-imap"
)

// Client is the subset of an IMAP session the mailbox backend needs
type Client interface {
	Connect(server string) error
	Login(user, password string) error
	SelectMailbox(name string) error
	Refresh() error
	ListSince(since time.Time) ([]uint32, error)
	FetchMessage(uid uint32) (*imap.Message, error)
	MarkSeen(uid uint32) error
	Close() error
}
