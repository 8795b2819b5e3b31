package imap

import (
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

var errNotConnected = errors.New("not connected")

type StandardClient struct {
	client  *client.Client
	timeout time.Duration
}

// NewStandardClient creates a client whose fetches time out after 30 seconds
func NewStandardClient() *StandardClient {
	return &StandardClient{
		timeout: 30 * time.Second,
	}
}

// Connect dials the server over TLS, e.g. "imap.gmail.com:993"
func (c *StandardClient) Connect(server string) error {
	cl, err := client.DialTLS(server, nil)
	if err != nil {
		return fmt.Errorf("IMAP connection error: %w", err)
	}
	c.client = cl
	return nil
}

// Login authenticates with an address and application password
func (c *StandardClient) Login(user, password string) error {
	if c.client == nil {
		return errNotConnected
	}
	return c.client.Login(user, password)
}

// SelectMailbox opens the mailbox read-write so MarkSeen works
func (c *StandardClient) SelectMailbox(name string) error {
	if c.client == nil {
		return errNotConnected
	}
	_, err := c.client.Select(name, false)
	return err
}

// Refresh sends a NOOP so the server reports messages delivered since the mailbox was selected
func (c *StandardClient) Refresh() error {
	if c.client == nil {
		return errNotConnected
	}
	return c.client.Noop()
}

// ListSince returns the UIDs of messages received on or after the day of since, seen or not.
// IMAP SEARCH SINCE has day granularity so callers still filter on the internal date.
func (c *StandardClient) ListSince(since time.Time) ([]uint32, error) {
	if c.client == nil {
		return nil, errNotConnected
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("error searching for recent emails: %w", err)
	}

	return uids, nil
}

// FetchMessage retrieves the envelope, internal date and full body of one message by UID
func (c *StandardClient) FetchMessage(uid uint32) (*imap.Message, error) {
	if c.client == nil {
		return nil, errNotConnected
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	items := fetchItems()

	prevTimeout := c.client.Timeout
	c.client.Timeout = c.timeout
	defer func() { c.client.Timeout = prevTimeout }()

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		msg = m
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("error fetching message %d: %w", uid, err)
	}

	if msg == nil {
		return nil, fmt.Errorf("no message retrieved for %d", uid)
	}

	return msg, nil
}

// fetchItems peeks at the body so fetching leaves the \Seen flag untouched
func fetchItems() []imap.FetchItem {
	section := &imap.BodySectionName{Peek: true}
	return []imap.FetchItem{section.FetchItem(), imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate}
}

// MarkSeen flags the message as read once its code has been consumed
func (c *StandardClient) MarkSeen(uid uint32) error {
	if c.client == nil {
		return errNotConnected
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	return c.client.UidStore(seqSet, item, flags, nil)
}

// Close logs out. It is a no-op without a connection.
func (c *StandardClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Logout()
}
