package dom

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"github.com/copyleftdev/scryshot/internal/backend"
)

const (
	// pollInterval is how often locator and readiness predicates are re-evaluated.
	pollInterval = 100 * time.Millisecond
	// NetworkQuietPeriod is how long no new resource may load before a
	// networkidle navigation counts as finished.
	NetworkQuietPeriod = 500 * time.Millisecond
)

func GetFullHTMLAction(res *string) chromedp.Action {
	return chromedp.Evaluate(`document.documentElement.outerHTML`, res)
}

func NavigateAction(url string) chromedp.Action {
	return chromedp.Navigate(url)
}

// WaitReadyAction waits until the page satisfies the navigation wait policy.
func WaitReadyAction(wait backend.WaitPolicy) chromedp.Action {
	expr := ReadyStateScript(wait)
	if wait == backend.WaitNetworkIdle {
		expr = NetworkQuietScript(NetworkQuietPeriod)
	}
	return chromedp.Poll(expr, nil, chromedp.WithPollingInterval(pollInterval))
}

// LocateAction polls until a visible element matches loc and tags it with mark.
func LocateAction(loc backend.Locator, mark string) chromedp.Action {
	return chromedp.Poll(LocateScript(loc, mark), nil, chromedp.WithPollingInterval(pollInterval))
}

// ClickAction clicks the element a LocateAction tagged with mark.
func ClickAction(loc backend.Locator, mark string) chromedp.Action {
	return chromedp.Tasks{
		LocateAction(loc, mark),
		chromedp.Click(MarkSelector(mark), chromedp.ByQuery, chromedp.NodeVisible),
	}
}

// TypeAction replaces the value of the input loc resolves to.
func TypeAction(loc backend.Locator, mark, text string) chromedp.Action {
	sel := MarkSelector(mark)
	return chromedp.Tasks{
		LocateAction(loc, mark),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	}
}

func ScreenshotAction(res *[]byte) chromedp.Action {
	return chromedp.FullScreenshot(res, 100)
}

var keptTags = map[string]bool{
	"html": true, "head": true, "body": true, "title": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "div": true, "span": true, "br": true, "hr": true,
	"ul": true, "ol": true, "li": true,
	"table": true, "thead": true, "tbody": true, "tfoot": true, "tr": true, "th": true, "td": true,
	"a": true, "button": true, "input": true, "textarea": true, "select": true, "option": true, "label": true,
	"form": true, "img": true, "pre": true, "code": true, "strong": true, "em": true, "b": true, "i": true,
	"header": true, "nav": true, "main": true, "section": true, "footer": true, "dialog": true,
}

// void elements never get a closing tag
var voidTags = map[string]bool{"br": true, "hr": true, "input": true, "img": true}

var keptAttrs = map[string]bool{
	"href": true, "src": true, "alt": true, "title": true,
	"id": true, "class": true,
	"type": true, "value": true, "placeholder": true, "name": true,
	"selected": true, "checked": true, "disabled": true, "readonly": true,
	"aria-label": true, "aria-hidden": true, "role": true,
	"data-selected": true, "data-testid": true,
}

// GetSimplifiedDOM strips scripts, styles and presentational noise from an
// HTML document, keeping the structure and text a reviewer needs to see why
// a locator did not match.
func GetSimplifiedDOM(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = simplifyNode(&buf, doc)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func simplifyNode(w io.Writer, n *html.Node) error {
	switch n.Type {
	case html.ErrorNode:
		return nil
	case html.DocumentNode:
		// Process children
	case html.DoctypeNode:
		if _, err := io.WriteString(w, "<!DOCTYPE "+n.Data+">"); err != nil {
			return err
		}
	case html.CommentNode:
		return nil
	case html.TextNode:
		trimmed := strings.TrimSpace(n.Data)
		if trimmed != "" {
			if _, err := io.WriteString(w, html.EscapeString(trimmed)+" "); err != nil {
				return err
			}
		}
		return nil
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "meta", "link", "svg":
			return nil
		}

		if !keptTags[n.Data] {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if err := simplifyNode(w, c); err != nil {
					return err
				}
			}
			return nil
		}

		if _, err := io.WriteString(w, "<"+n.Data); err != nil {
			return err
		}
		for _, a := range n.Attr {
			if !keptAttrs[a.Key] {
				continue
			}
			val := strings.TrimSpace(a.Val)
			if val != "" || a.Key == "value" || a.Key == "selected" || a.Key == "checked" || a.Key == "disabled" || a.Key == "readonly" || a.Key == "data-selected" {
				if _, err := io.WriteString(w, " "+a.Key+"=\""+html.EscapeString(val)+"\""); err != nil {
					return err
				}
			}
		}
		if _, err := io.WriteString(w, ">"); err != nil {
			return err
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := simplifyNode(w, c); err != nil {
			return err
		}
	}

	if n.Type == html.ElementNode && keptTags[n.Data] && !voidTags[n.Data] {
		if _, err := io.WriteString(w, "</"+n.Data+">"); err != nil {
			return err
		}
	}

	return nil
}
