package textutil

import "strings"

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
	"\x00", "",
)

// SanitizeFileName reduces a client-supplied name to a single safe path
// segment. Separators, colons and asterisks become dashes; other unsafe
// characters are removed. Names that collapse to nothing, or to a dot
// segment, yield fallback.
func SanitizeFileName(name, fallback string) string {
	name = strings.TrimSpace(fileNameReplacer.Replace(strings.TrimSpace(name)))
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return fallback
	}
	return name
}
