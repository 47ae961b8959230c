package backend

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	cases := []struct {
		raw  string
		want Locator
	}{
		{
			raw:  "button[data-selected]",
			want: Locator{Raw: "button[data-selected]", Kind: LocatorCSS, CSS: "button[data-selected]"},
		},
		{
			raw:  "h1:has-text('İstatistikler ve İlerleme')",
			want: Locator{Raw: "h1:has-text('İstatistikler ve İlerleme')", Kind: LocatorCSS, CSS: "h1", Text: "İstatistikler ve İlerleme"},
		},
		{
			raw:  `div:has-text("Profil Resmi")`,
			want: Locator{Raw: `div:has-text("Profil Resmi")`, Kind: LocatorCSS, CSS: "div", Text: "Profil Resmi"},
		},
		{
			raw:  ":has-text('x')",
			want: Locator{Raw: ":has-text('x')", Kind: LocatorCSS, CSS: "*", Text: "x"},
		},
		{
			raw:  "text=Profiliniz güncellendi.",
			want: Locator{Raw: "text=Profiliniz güncellendi.", Kind: LocatorText, Text: "Profiliniz güncellendi."},
		},
		{
			raw:  `text="Kaydet"`,
			want: Locator{Raw: `text="Kaydet"`, Kind: LocatorText, Text: "Kaydet", Exact: true},
		},
		{
			raw:  `role=button[name="Kaydet"]`,
			want: Locator{Raw: `role=button[name="Kaydet"]`, Kind: LocatorRole, Role: "button", Name: "Kaydet", Exact: true},
		},
		{
			raw:  `role=button[name="kaydet" i]`,
			want: Locator{Raw: `role=button[name="kaydet" i]`, Kind: LocatorRole, Role: "button", Name: "kaydet"},
		},
		{
			raw:  "role=link[name=Profil]",
			want: Locator{Raw: "role=link[name=Profil]", Kind: LocatorRole, Role: "link", Name: "Profil"},
		},
		{
			raw:  "role=heading",
			want: Locator{Raw: "role=heading", Kind: LocatorRole, Role: "heading"},
		},
		{
			raw:  `role=button,name="Kaydet"`,
			want: Locator{Raw: `role=button,name="Kaydet"`, Kind: LocatorRole, Role: "button", Name: "Kaydet", Exact: true},
		},
		{
			raw:  "role=link, name=Profil",
			want: Locator{Raw: "role=link, name=Profil", Kind: LocatorRole, Role: "link", Name: "Profil"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseLocator(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.raw, got.String())
		})
	}
}

func TestLocator_Selector(t *testing.T) {
	cases := map[string]string{
		`role=button,name="Kaydet"`:    `role=button[name="Kaydet"]`,
		`role=button[name="Kaydet"]`:   `role=button[name="Kaydet"]`,
		"role=link,name=Profil":        `role=link[name="Profil" i]`,
		"role=heading":                 "role=heading",
		"h1:has-text('İstatistikler')": "h1:has-text('İstatistikler')",
		"text=Profiliniz güncellendi.": "text=Profiliniz güncellendi.",
	}
	for raw, want := range cases {
		assert.Equal(t, want, MustParseLocator(raw).Selector(), raw)
	}
}

func TestParseLocator_Errors(t *testing.T) {
	for _, raw := range []string{"", "   ", "text=", "role=", "role=button[checked]", "role=button,", "role=button,checked"} {
		_, err := ParseLocator(raw)
		assert.Error(t, err, raw)
	}
	assert.Panics(t, func() { MustParseLocator("") })
}

func TestLookupDevice(t *testing.T) {
	d, err := LookupDevice("iPhone 13")
	require.NoError(t, err)
	assert.Equal(t, "iPhone 13", d.Name)
	assert.True(t, d.Mobile)
	assert.Equal(t, 390, d.Width)

	d, err = LookupDevice("  pixel 5 ")
	require.NoError(t, err)
	assert.Equal(t, "Pixel 5", d.Name)

	d, err = LookupDevice("")
	assert.NoError(t, err)
	assert.Nil(t, d)

	_, err = LookupDevice("Nokia 3310")
	assert.Error(t, err)

	assert.Contains(t, DeviceNames(), "iPhone 13")
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(fmt.Errorf("wait: %w", ErrTimeout)))
	assert.True(t, IsTimeout(fmt.Errorf("wait: %w", context.DeadlineExceeded)))
	assert.False(t, IsTimeout(ErrNotFound))
}

func TestParseWaitPolicy(t *testing.T) {
	assert.Equal(t, WaitLoad, ParseWaitPolicy(""))
	assert.Equal(t, WaitNetworkIdle, ParseWaitPolicy("networkidle"))
	assert.Equal(t, WaitDOMContentLoaded, ParseWaitPolicy("domcontentloaded"))
}
