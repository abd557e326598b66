package exporter

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	repeatedUnderscores  = regexp.MustCompile(`_+`)
)

// SanitizeText converts segment text into a safe filename fragment: invalid
// characters removed, spaces collapsed to single underscores, optionally
// truncated to maxLen runes. Empty results fall back to "untitled".
func SanitizeText(text string, maxLen int) string {
	s := invalidFilenameChars.ReplaceAllString(text, "")
	s = strings.ReplaceAll(s, " ", "_")
	s = repeatedUnderscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if maxLen > 0 {
		r := []rune(s)
		if len(r) > maxLen {
			s = strings.TrimRight(string(r[:maxLen]), "_")
		}
	}
	if s == "" {
		s = "untitled"
	}
	return s
}

// IndexDigits returns the main-index digit width for a segment count,
// minimum 3. The result is fixed into committed state at the first export.
func IndexDigits(count int) int {
	if count <= 999 {
		return 3
	}
	return len(fmt.Sprintf("%d", count))
}

// FormatIndex renders an index as the zero-padded filename prefix. A zero
// sub-index is omitted: "001" rather than "001-000"; "001-500" otherwise.
func FormatIndex(idx Index, digits, subDigits int) string {
	main := fmt.Sprintf("%0*d", digits, idx.Main)
	if idx.Sub == 0 {
		return main
	}
	return fmt.Sprintf("%s-%0*d", main, subDigits, idx.Sub)
}

// BuildFilename expands the configured template for one segment. The
// template supports {index} and {basename}; the source extension is
// appended when the template does not already end with it.
func BuildFilename(idx Index, text string, format OutputFormat, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	indexPart := FormatIndex(idx, format.IndexDigits, format.IndexSubDigits)
	basename := SanitizeText(text, format.MaxTextLength) + ext

	tmpl := format.FilenameTemplate
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	out := strings.ReplaceAll(tmpl, "{index}", indexPart)
	out = strings.ReplaceAll(out, "{basename}", basename)
	if ext != "" && !strings.HasSuffix(out, ext) {
		out += ext
	}
	return out
}

// SourceExt returns the extension of the source media file, dot included.
func SourceExt(sourceFile string) string {
	return filepath.Ext(sourceFile)
}

// EncodeFormat maps a file extension to the encoder format name handed to
// the audio executor. Container-only extensions need explicit names.
func EncodeFormat(ext string) string {
	switch strings.ToLower(ext) {
	case ".m4a":
		return "ipod"
	case ".aac":
		return "adts"
	case ".mp4":
		return "mp4"
	default:
		return strings.TrimPrefix(strings.ToLower(ext), ".")
	}
}
