package dom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/scryshot/internal/backend"
)

const profilePage = `<!DOCTYPE html>
<html><head><title>Profil</title><style>.hidden{display:none}</style><script>var x = 1;</script></head>
<body>
  <h1>İstatistikler ve İlerleme</h1>
  <div><span>Profil Resmi</span>
    <button data-selected="false" class="avatar">A</button>
    <button data-selected="true" class="avatar">B</button>
  </div>
  <button id="save" onclick="document.getElementById('toast').className=''">Kaydet</button>
  <div id="toast" class="hidden" role="status">Profiliniz güncellendi.</div>
  <!-- comment -->
</body></html>`

func TestGetSimplifiedDOM(t *testing.T) {
	out, err := GetSimplifiedDOM(profilePage)
	require.NoError(t, err)

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "<style")
	assert.NotContains(t, out, "comment")
	assert.NotContains(t, out, "onclick")
	assert.Contains(t, out, `<button data-selected="true" class="avatar">B </button>`)
	assert.Contains(t, out, `<h1>İstatistikler ve İlerleme </h1>`)
	assert.Contains(t, out, `role="status"`)
}

func TestLocateScript(t *testing.T) {
	script := LocateScript(backend.MustParseLocator(`role=button[name="Kaydet"]`), "m1")
	assert.True(t, strings.HasPrefix(script, "(function(want, mark)"))
	assert.Contains(t, script, `{"kind":"role","role":"button","name":"Kaydet","exact":true}`)
	assert.True(t, strings.HasSuffix(script, `, "m1")`))

	script = LocateScript(backend.MustParseLocator("h1:has-text('İstatistikler ve İlerleme')"), "")
	assert.Contains(t, script, `{"kind":"css","css":"h1","text":"İstatistikler ve İlerleme","exact":false}`)

	script = LocateScript(backend.MustParseLocator(`text=it's "quoted"`), "")
	assert.Contains(t, script, `"text":"it's \"quoted\""`)
}

func TestMarkSelector(t *testing.T) {
	assert.Equal(t, `[data-scryshot="m7"]`, MarkSelector("m7"))
}

func TestReadyScripts(t *testing.T) {
	assert.Contains(t, ReadyStateScript(backend.WaitLoad), "'complete'")
	assert.Contains(t, ReadyStateScript(backend.WaitDOMContentLoaded), "'loading'")
	assert.Contains(t, NetworkQuietScript(500*time.Millisecond), "})(500)")
}

func findChrome() string {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// TestLocateActions exercises the locator script in a real browser.
func TestLocateActions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chromedp test in short mode")
	}
	chrome := findChrome()
	if chrome == "" {
		t.Skip("Skipping chromedp test: no Chrome/Chromium on PATH")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(profilePage))
	}))
	defer srv.Close()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chrome),
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", os.Getenv("CI") == "true"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(t.Logf))
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, 30*time.Second)
	defer cancelTimeout()

	require.NoError(t, chromedp.Run(ctx,
		NavigateAction(srv.URL),
		WaitReadyAction(backend.WaitLoad),
		LocateAction(backend.MustParseLocator("h1:has-text('İstatistikler ve İlerleme')"), ""),
		ClickAction(backend.MustParseLocator("button[data-selected]"), "avatar"),
		ClickAction(backend.MustParseLocator(`role=button[name="Kaydet"]`), "save"),
		LocateAction(backend.MustParseLocator("text=Profiliniz güncellendi."), ""),
	))

	var html string
	require.NoError(t, chromedp.Run(ctx, GetFullHTMLAction(&html)))
	assert.Contains(t, html, `data-scryshot="save"`)

	var shot []byte
	require.NoError(t, chromedp.Run(ctx, ScreenshotAction(&shot)))
	assert.NotEmpty(t, shot)

	// hidden toast text must not satisfy a locator on a fresh load
	shortCtx, cancelShort := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancelShort()
	err := chromedp.Run(shortCtx, NavigateAction(srv.URL), LocateAction(backend.MustParseLocator("text=Profiliniz güncellendi."), ""))
	assert.Error(t, err)
}
