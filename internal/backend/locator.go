package backend

import (
	"fmt"
	"regexp"
	"strings"
)

// LocatorKind tells backends how to resolve a locator.
type LocatorKind int

const (
	// LocatorCSS is a CSS selector, optionally narrowed by :has-text().
	LocatorCSS LocatorKind = iota
	// LocatorText matches the element whose own text contains Text.
	LocatorText
	// LocatorRole matches by ARIA role and accessible name.
	LocatorRole
)

// Locator is a parsed selector. The supported grammar is the subset of
// Playwright selectors the verification scenarios use:
//
//	button[data-selected]                 plain CSS
//	h1:has-text('İstatistikler')          CSS narrowed by contained text
//	text=Profiliniz güncellendi.          text match (quoted means exact)
//	role=button[name="Kaydet"]            ARIA role and accessible name
//	role=button,name="Kaydet"             same, comma form
type Locator struct {
	Raw   string
	Kind  LocatorKind
	CSS   string
	Text  string // :has-text() argument or text= value
	Role  string
	Name  string
	Exact bool
}

func (l Locator) String() string { return l.Raw }

// Selector renders the locator in Playwright's selector syntax. Role
// locators are normalised to the bracket form; everything else is Raw.
func (l Locator) Selector() string {
	if l.Kind != LocatorRole {
		return l.Raw
	}
	if l.Name == "" {
		return "role=" + l.Role
	}
	if l.Exact {
		return fmt.Sprintf("role=%s[name=%q]", l.Role, l.Name)
	}
	return fmt.Sprintf("role=%s[name=%q i]", l.Role, l.Name)
}

var (
	hasTextRe  = regexp.MustCompile(`^(.*):has-text\((?:"([^"]*)"|'([^']*)')\)$`)
	roleRe     = regexp.MustCompile(`^([a-zA-Z]+)\s*(?:\[(.*)\]|,\s*(.+))?$`)
	roleAttrRe = regexp.MustCompile(`^name\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\]\s]+))(\s+[is])?$`)
)

// ParseLocator parses a selector string into a Locator.
func ParseLocator(raw string) (Locator, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Locator{}, fmt.Errorf("empty selector")
	}
	loc := Locator{Raw: s}

	switch {
	case strings.HasPrefix(s, "text="):
		text := strings.TrimPrefix(s, "text=")
		if unq, ok := unquote(text); ok {
			text = unq
			loc.Exact = true
		}
		if text == "" {
			return Locator{}, fmt.Errorf("selector %q has no text", raw)
		}
		loc.Kind = LocatorText
		loc.Text = text
		return loc, nil

	case strings.HasPrefix(s, "role="):
		m := roleRe.FindStringSubmatch(strings.TrimPrefix(s, "role="))
		if m == nil {
			return Locator{}, fmt.Errorf("invalid role selector %q", raw)
		}
		loc.Kind = LocatorRole
		loc.Role = strings.ToLower(m[1])
		if attr := strings.TrimSpace(m[2] + m[3]); attr != "" {
			am := roleAttrRe.FindStringSubmatch(attr)
			if am == nil {
				return Locator{}, fmt.Errorf("unsupported role attribute in %q", raw)
			}
			switch {
			case am[1] != "":
				loc.Name, loc.Exact = am[1], true
			case am[2] != "":
				loc.Name, loc.Exact = am[2], true
			default:
				loc.Name = am[3]
			}
			switch strings.TrimSpace(am[4]) {
			case "i":
				loc.Exact = false
			case "s":
				loc.Exact = true
			}
		}
		return loc, nil
	}

	if m := hasTextRe.FindStringSubmatch(s); m != nil {
		loc.CSS = strings.TrimSpace(m[1])
		if loc.CSS == "" {
			loc.CSS = "*"
		}
		loc.Text = m[2] + m[3]
		return loc, nil
	}

	loc.CSS = s
	return loc, nil
}

// MustParseLocator is ParseLocator for selectors known at compile time.
func MustParseLocator(raw string) Locator {
	loc, err := ParseLocator(raw)
	if err != nil {
		panic(err)
	}
	return loc
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return s, false
}
