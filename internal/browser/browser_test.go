package browser

import (
	"os"
	"path/filepath"
	"testing"

	"signin-token-sync/internal/models"

	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactory(t *testing.T) {
	for _, driver := range []string{"", "rod", "chromedp"} {
		f, err := NewFactory(models.BrowserConfig{Driver: driver})
		require.NoError(t, err, driver)
		assert.NotNil(t, f, driver)
	}

	_, err := NewFactory(models.BrowserConfig{Driver: "selenium"})
	assert.Error(t, err)
}

func TestMatchRoutes(t *testing.T) {
	routes := []responseRoute{
		{match: "/auth/token"},
		{match: "/api/"},
	}

	assert.Len(t, matchRoutes(routes, "https://app.example.com/api/auth/token?x=1"), 2)
	assert.Len(t, matchRoutes(routes, "https://app.example.com/api/me"), 1)
	assert.Empty(t, matchRoutes(routes, "https://cdn.example.com/app.js"))
	assert.Empty(t, matchRoutes(nil, "https://app.example.com/api/me"))
}

func TestBlockedResource(t *testing.T) {
	for _, rt := range []string{"Image", "Stylesheet", "Font", "Media"} {
		assert.True(t, blockedResource(rt), rt)
	}
	for _, rt := range []string{"Document", "Script", "XHR", "Fetch"} {
		assert.False(t, blockedResource(rt), rt)
	}
}

func TestSweepTempDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "signin-browser-123"), 0o700))
	require.NoError(t, os.Mkdir(filepath.Join(root, "signin-browser-456"), 0o700))
	require.NoError(t, os.Mkdir(filepath.Join(root, "other-dir"), 0o700))

	assert.Equal(t, 2, SweepTempDirs(root))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "other-dir", entries[0].Name())
}

func TestDomContentLoaded(t *testing.T) {
	loaded := make(chan struct{}, 1)
	listen := domContentLoaded(loaded)

	listen(&page.EventLoadEventFired{})
	listen(&page.EventFrameNavigated{})
	assert.Empty(t, loaded)

	listen(&page.EventDomContentEventFired{})
	assert.Len(t, loaded, 1)

	// a second event must not block the listener
	listen(&page.EventDomContentEventFired{})
	assert.Len(t, loaded, 1)
}
