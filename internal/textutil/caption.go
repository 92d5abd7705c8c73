package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// CaptionFields are the values a caption template can reference.
type CaptionFields struct {
	Name    string
	Day     string
	Segment string
}

// Title turns a camera file name such as "front_door-0815.265" into
// "Front Door 0815".
func Title(name string) string {
	stem := Stem(name)
	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
	})
	return titleCaser.String(strings.Join(words, " "))
}

// FormatDay renders a YYYYMMDD day directory as YYYY-MM-DD. Other values pass
// through unchanged.
func FormatDay(day string) string {
	if len(day) != 8 {
		return day
	}
	for _, r := range day {
		if r < '0' || r > '9' {
			return day
		}
	}
	return day[:4] + "-" + day[4:6] + "-" + day[6:]
}

// ExpandCaption fills {name}, {title}, {day}, and {segment} in tmpl. Unknown
// placeholders are left as written.
func ExpandCaption(tmpl string, f CaptionFields) string {
	if strings.TrimSpace(tmpl) == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{name}", f.Name,
		"{title}", Title(f.Name),
		"{day}", FormatDay(f.Day),
		"{segment}", f.Segment,
	)
	return strings.TrimSpace(r.Replace(tmpl))
}
