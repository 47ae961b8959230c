package dom

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/copyleftdev/scryshot/internal/backend"
)

// MarkAttribute is set on the element a locator resolved to, so that the
// engine's native click and input actions can target it by CSS.
const MarkAttribute = "data-scryshot"

// locateFn finds the first visible element matching a locator, marks it
// and reports whether one was found.
const locateFn = `function(want, mark) {
	const norm = s => (s || '').replace(/\s+/g, ' ').trim();
	const matches = (hay, needle, exact) => exact
		? norm(hay) === needle
		: norm(hay).toLowerCase().includes(needle.toLowerCase());
	const visible = el => {
		const r = el.getBoundingClientRect();
		const st = window.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
	};
	const roles = {
		button: 'button,input[type=button],input[type=submit],input[type=reset],[role=button]',
		link: 'a[href],[role=link]',
		heading: 'h1,h2,h3,h4,h5,h6,[role=heading]',
		textbox: 'input:not([type]),input[type=text],input[type=email],input[type=password],input[type=search],input[type=tel],input[type=url],textarea,[role=textbox]',
		checkbox: 'input[type=checkbox],[role=checkbox]',
		img: 'img[alt],[role=img]',
		dialog: 'dialog,[role=dialog]',
		status: 'output,[role=status]'
	};
	const accName = el => el.getAttribute('aria-label')
		|| (el.labels && el.labels.length ? el.labels[0].innerText : '')
		|| el.getAttribute('alt') || el.getAttribute('title')
		|| (el.tagName === 'INPUT' ? el.value : '')
		|| el.innerText || el.textContent;
	const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE']);

	let found = [];
	if (want.kind === 'text') {
		const all = Array.from(document.body.querySelectorAll('*'))
			.filter(el => !skip.has(el.tagName) && matches(el.innerText || el.textContent, want.text, want.exact));
		const set = new Set(all);
		found = all.filter(el => !Array.from(el.children).some(c => set.has(c)));
	} else if (want.kind === 'role') {
		found = Array.from(document.querySelectorAll(roles[want.role] || '[role="' + want.role + '"]'));
		if (want.name) {
			found = found.filter(el => matches(accName(el), want.name, want.exact));
		}
	} else {
		found = Array.from(document.querySelectorAll(want.css));
		if (want.text) {
			found = found.filter(el => matches(el.innerText || el.textContent, want.text, false));
		}
	}
	const el = found.find(visible);
	if (!el) {
		return false;
	}
	if (mark) {
		document.querySelectorAll('[` + MarkAttribute + `="' + mark + '"]').forEach(e => e.removeAttribute('` + MarkAttribute + `'));
		el.setAttribute('` + MarkAttribute + `', mark);
	}
	return true;
}`

type locatorQuery struct {
	Kind  string `json:"kind"`
	CSS   string `json:"css,omitempty"`
	Text  string `json:"text,omitempty"`
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	Exact bool   `json:"exact"`
}

// LocateScript returns a JavaScript expression that evaluates to true once
// a visible element matches loc. When mark is non-empty the element is
// tagged so MarkSelector(mark) selects it.
func LocateScript(loc backend.Locator, mark string) string {
	want := locatorQuery{CSS: loc.CSS, Text: loc.Text, Role: loc.Role, Name: loc.Name, Exact: loc.Exact}
	switch loc.Kind {
	case backend.LocatorText:
		want.Kind = "text"
	case backend.LocatorRole:
		want.Kind = "role"
	default:
		want.Kind = "css"
	}
	queryJSON, _ := json.Marshal(want)
	markJSON, _ := json.Marshal(mark)
	return fmt.Sprintf("(%s)(%s, %s)", locateFn, queryJSON, markJSON)
}

// MarkSelector selects the element tagged by a LocateScript run.
func MarkSelector(mark string) string {
	return fmt.Sprintf(`[%s=%q]`, MarkAttribute, mark)
}

// ReadyStateScript is true once the document reached the state a wait
// policy requires.
func ReadyStateScript(wait backend.WaitPolicy) string {
	if wait == backend.WaitDOMContentLoaded {
		return `document.readyState !== 'loading'`
	}
	return `document.readyState === 'complete'`
}

// NetworkQuietScript is true once the page has loaded and no new resource
// entries appeared for the quiet period. It is polled repeatedly; state is
// kept on window between polls.
func NetworkQuietScript(quiet time.Duration) string {
	return fmt.Sprintf(`(function(quietMs) {
	if (document.readyState !== 'complete') {
		return false;
	}
	const n = performance.getEntriesByType('resource').length;
	const now = Date.now();
	const s = window.__scryshotIdle || (window.__scryshotIdle = {n: -1, since: now});
	if (s.n !== n) {
		s.n = n;
		s.since = now;
		return false;
	}
	return now - s.since >= quietMs;
})(%d)`, quiet.Milliseconds())
}
