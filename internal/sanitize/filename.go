package sanitize

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxFilenameLength is the maximum allowed length for the filename base.
	MaxFilenameLength = 120
	// DefaultExt is the default extension used when none is provided.
	DefaultExt = "mp4"
	// DefaultName is the replacement name when the title is empty.
	DefaultName = "video"
	// DefaultUploadName replaces upload names that sanitize to nothing.
	DefaultUploadName = "image"
)

var (
	unsafeChars = regexp.MustCompile(`[\\/:*?"<>|]+`)
	// object keys are kept to a conservative URL-friendly set
	objectUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// ToSafeFilename builds a cross-platform safe filename from title and extension (without dot in ext).
func ToSafeFilename(title, ext string) string {
	name := strings.TrimSpace(title)
	name = strings.Map(dropControl, name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(strings.TrimSpace(name), ".")
	if name == "" {
		name = DefaultName
	}
	name = truncate(name, MaxFilenameLength)
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = DefaultExt
	}
	return name + "." + ext
}

// ObjectName turns a client-supplied upload name into a single path segment
// usable inside a blob key. Directory components are discarded.
func ObjectName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		name = ""
	}
	name = strings.ReplaceAll(name, " ", "_")
	name = objectUnsafe.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if strings.Trim(name, "_") == "" {
		name = DefaultUploadName
	}
	return truncate(name, MaxFilenameLength)
}

func dropControl(r rune) rune {
	if unicode.IsControl(r) {
		return -1
	}
	return r
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
