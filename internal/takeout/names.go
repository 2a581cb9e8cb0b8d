package takeout

import (
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Google truncates exported file names (including the .json suffix) at this
// many characters.
const maxNameLength = 90

const (
	sidecarExt          = ".json"
	supplementalSegment = "supplemental-metadata"
	editedSuffix        = "-edited"
)

// IsSidecar reports whether the entry is a JSON metadata file.
func IsSidecar(p string) bool {
	return strings.HasSuffix(p, sidecarExt)
}

// IgnoreReason returns why an entry is never uploaded, or "" when it should be
// considered.
func IgnoreReason(p string) string {
	base := path.Base(p)
	switch {
	case strings.HasSuffix(base, ".MP"):
		return "motion photo video"
	case base == "archive_browser.html":
		return "archive browser"
	default:
		return ""
	}
}

// SidecarKey maps a sidecar path to the media path it most likely describes:
// "x.jpg.json" becomes "x.jpg", "x.jpg(1).json" becomes "x(1).jpg", and
// supplemental-metadata segments (possibly truncated) are dropped.
func SidecarKey(p string) string {
	name := strings.TrimSuffix(p, sidecarExt)

	counter := ""
	if c, rest, ok := splitCounter(name); ok {
		counter, name = c, rest
	}
	name = stripSupplemental(name)
	if counter != "" {
		ext := path.Ext(name)
		name = strings.TrimSuffix(name, ext) + counter + ext
	}
	return normalizeKey(name)
}

// RepairTruncated rebuilds a sidecar key whose name was cut off by the
// exporter, using the untruncated title stored inside the sidecar.
func RepairTruncated(key, title string) string {
	if title == "" || path.Base(key) == title {
		return key
	}
	if utf8.RuneCountInString(key) < maxNameLength-len(sidecarExt) {
		return key
	}
	dir := path.Dir(key)
	ext := path.Ext(title)
	stem := strings.TrimSuffix(title, ext)
	limit := maxNameLength - utf8.RuneCountInString(dir) - utf8.RuneCountInString(ext) - 1
	stem = truncateRunes(stem, limit)
	return normalizeKey(path.Join(dir, stem+counterOf(key)+ext))
}

// lookupKeys lists candidate sidecar keys for a media path, most specific first.
func lookupKeys(mediaPath string) []string {
	key := normalizeKey(mediaPath)
	keys := []string{key}
	ext := path.Ext(key)
	stem := strings.TrimSuffix(key, ext)
	if ext != "" {
		keys = append(keys, stem)
	}
	if strings.HasSuffix(stem, editedSuffix) {
		keys = append(keys, strings.TrimSuffix(stem, editedSuffix)+ext)
	}
	return keys
}

func normalizeKey(p string) string {
	return norm.NFC.String(p)
}

// splitCounter splits a trailing "(N)" duplicate counter off name.
func splitCounter(name string) (string, string, bool) {
	if !strings.HasSuffix(name, ")") {
		return "", name, false
	}
	open := strings.LastIndex(name, "(")
	if open < 0 || open < strings.LastIndex(name, "/") {
		return "", name, false
	}
	digits := name[open+1 : len(name)-1]
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return "", name, false
	}
	return name[open:], name[:open], true
}

// counterOf returns the duplicate counter of a key, whether it sits at the end
// or before the extension.
func counterOf(key string) string {
	if c, _, ok := splitCounter(key); ok {
		return c
	}
	if c, _, ok := splitCounter(strings.TrimSuffix(key, path.Ext(key))); ok {
		return c
	}
	return ""
}

func stripSupplemental(name string) string {
	ext := path.Ext(name)
	if len(ext) < 2 {
		return name
	}
	segment := ext[1:]
	if !strings.HasPrefix(supplementalSegment, segment) {
		return name
	}
	rest := strings.TrimSuffix(name, ext)
	if segment != supplementalSegment && (len(segment) < 2 || path.Ext(rest) == "") {
		return name
	}
	return rest
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
