package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/backend"
)

func TestNew(t *testing.T) {
	for _, name := range []string{"", "chromedp", "Playwright", "rod"} {
		b, err := New(name, nil)
		require.NoError(t, err, name)
		assert.NotEmpty(t, b.Name())
	}

	b, err := New("", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "chromedp", b.Name())

	_, err = New("selenium", zap.NewNop())
	assert.ErrorIs(t, err, backend.ErrUnknownBackend)
	assert.Contains(t, err.Error(), "chromedp, playwright, rod")
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"chromedp", "playwright", "rod"}, Names())
}

func TestTimeoutMS(t *testing.T) {
	ms, err := deadlineMS(300 * time.Microsecond)
	require.NoError(t, err)
	assert.Equal(t, 1.0, *ms, "a sub-millisecond deadline must not become Playwright's no-limit zero")

	ms, err = deadlineMS(1500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, *ms)

	_, err = deadlineMS(-time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ms, err = timeoutMS(context.Background())
	require.NoError(t, err)
	assert.Zero(t, *ms)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = timeoutMS(canceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLaunchWithin(t *testing.T) {
	t.Run("returns the control url", func(t *testing.T) {
		u, err := launchWithin(context.Background(), func() (string, error) { return "ws://127.0.0.1:9222", nil }, func() {})
		require.NoError(t, err)
		assert.Equal(t, "ws://127.0.0.1:9222", u)
	})

	t.Run("kills a launch that outlives the deadline", func(t *testing.T) {
		release := make(chan struct{})
		killed := make(chan struct{})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := launchWithin(ctx, func() (string, error) {
			<-release
			return "", errors.New("killed")
		}, func() {
			close(killed)
			close(release)
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		select {
		case <-killed:
		default:
			t.Fatal("launcher was not killed")
		}
	})
}

func TestInstall_UnknownBackend(t *testing.T) {
	assert.ErrorIs(t, Install("selenium", zap.NewNop()), backend.ErrUnknownBackend)
	assert.NoError(t, Install("chromedp", zap.NewNop()))
}

func findChrome() string {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

const isolationPage = `<!DOCTYPE html><html><body>
<h1 id="state"></h1>
<input id="name" type="text">
<script>
document.getElementById('state').textContent = document.cookie.includes('seen=1') ? 'returning' : 'first';
document.cookie = 'seen=1; path=/';
</script>
</body></html>`

// TestChromedp_ContextIsolation drives a real Chrome and checks that two
// contexts of the same session do not share cookies.
func TestChromedp_ContextIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chromedp test in short mode")
	}
	chrome := findChrome()
	if chrome == "" {
		t.Skip("Skipping chromedp test: no Chrome/Chromium on PATH")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(isolationPage))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := NewChromedp(zap.NewNop()).Launch(ctx, backend.LaunchOptions{
		Headless:       true,
		ExecutablePath: chrome,
		NoSandbox:      os.Getenv("CI") == "true",
	})
	require.NoError(t, err)
	defer session.Close()

	visit := func() string {
		bc, err := session.NewContext(ctx, backend.ContextOptions{})
		require.NoError(t, err)
		defer bc.Close()
		page, err := bc.NewPage(ctx)
		require.NoError(t, err)
		defer page.Close()

		require.NoError(t, page.Goto(ctx, srv.URL, backend.WaitLoad))
		require.NoError(t, page.Goto(ctx, srv.URL, backend.WaitLoad))
		require.NoError(t, page.WaitVisible(ctx, backend.MustParseLocator("text=returning")))
		require.NoError(t, page.Fill(ctx, backend.MustParseLocator("#name"), "Ada"))

		shot, err := page.Screenshot(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, shot)

		html, err := page.Content(ctx)
		require.NoError(t, err)
		return html
	}

	// Each context starts without the cookie, so the second load in each
	// sees it for the first time.
	assert.Contains(t, visit(), "returning")
	assert.Contains(t, visit(), "returning")

	bc, err := session.NewContext(ctx, backend.ContextOptions{})
	require.NoError(t, err)
	defer bc.Close()
	page, err := bc.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Goto(ctx, srv.URL, backend.WaitLoad))

	short, cancelShort := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancelShort()
	err = page.WaitVisible(short, backend.MustParseLocator("text=returning"))
	require.Error(t, err)
	assert.True(t, backend.IsTimeout(err))
}
