package imap

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
)

func TestFetchItemsPeekBody(t *testing.T) {
	items := fetchItems()

	assert.Contains(t, items, imap.FetchItem("BODY.PEEK[]"))
	assert.NotContains(t, items, imap.FetchItem("BODY[]"))
	assert.Contains(t, items, imap.FetchUid)
	assert.Contains(t, items, imap.FetchInternalDate)
}

func TestNotConnected(t *testing.T) {
	c := NewStandardClient()

	_, err := c.FetchMessage(1)
	assert.ErrorIs(t, err, errNotConnected)
	assert.ErrorIs(t, c.MarkSeen(1), errNotConnected)
	assert.NoError(t, c.Close())
}
