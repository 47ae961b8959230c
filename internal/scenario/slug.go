package scenario

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// folds covers letters that have no decomposition into a base letter.
var folds = strings.NewReplacer("ı", "i", "ł", "l", "Ł", "L", "ø", "o", "Ø", "O", "đ", "d", "Đ", "D", "ß", "ss")

// Slugify turns a scenario name into a stable directory name. Accents are
// folded ("İstatistikler" -> "istatistikler") and runs of anything other
// than letters and digits collapse into a single dash.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFD.String(folds.Replace(strings.TrimSpace(name))) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			dash = true
		}
	}
	if b.Len() == 0 {
		return "scenario"
	}
	return b.String()
}
