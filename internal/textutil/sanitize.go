package textutil

import (
	"path"
	"strings"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// Stem returns name without its directory or final extension.
func Stem(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// OutputName maps a segment file name to the MP4 name delivered to the chat.
// The day is prefixed so segments with recycled names stay distinct.
func OutputName(day, segmentName string) string {
	stem := SanitizeFileName(Stem(segmentName))
	if stem == "" || stem == "." {
		stem = "segment"
	}
	if day = SanitizeFileName(day); day != "" && !strings.HasPrefix(stem, day) {
		stem = day + "_" + stem
	}
	return stem + ".mp4"
}
