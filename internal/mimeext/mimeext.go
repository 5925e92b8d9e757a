package mimeext

import (
	"bytes"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultExt is the extension used when MIME is unknown or empty.
	DefaultExt = "mp4"

	// ExtM4A is the file extension for MP4 audio.
	ExtM4A = "m4a"
	// ExtWebM is the file extension for WebM media.
	ExtWebM = "webm"

	// MimeVideoMP4 is the MIME type for MP4 video.
	MimeVideoMP4 = "video/mp4"
	// MimeAudioMP4 is the MIME type for MP4 audio.
	MimeAudioMP4 = "audio/mp4"
	// MimeVideoWebM is the MIME type for WebM video.
	MimeVideoWebM = "video/webm"
	// MimeAudioWebM is the MIME type for WebM audio.
	MimeAudioWebM = "audio/webm"

	MimeImageJPEG = "image/jpeg"
	MimeImagePNG  = "image/png"
	MimeImageGIF  = "image/gif"
	MimeImageWebP = "image/webp"
)

// ImageTypes is the default upload allow-list.
var ImageTypes = []string{MimeImageJPEG, MimeImagePNG, MimeImageGIF, MimeImageWebP}

// knownExts are extensions accepted from a media URL path.
var knownExts = map[string]bool{
	"mp4": true, "m4a": true, "webm": true, "mov": true, "mp3": true, "aac": true, "m3u8": true,
}

// aliases maps non-standard names browsers still send to their canonical type.
var aliases = map[string]string{
	"image/jpg":   MimeImageJPEG,
	"image/pjpeg": MimeImageJPEG,
	"image/x-png": MimeImagePNG,
}

// Base strips parameters, lowercases and canonicalises a MIME type.
func Base(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	if canon, ok := aliases[mime]; ok {
		return canon
	}
	return mime
}

// ExtFromMime returns file extension (without dot) for given mime type.
// Falls back to subtype or mp4 if unknown.
func ExtFromMime(mime string) string {
	base := Base(mime)
	if base == "" {
		return DefaultExt
	}
	switch base {
	case MimeVideoMP4:
		return DefaultExt
	case MimeAudioMP4:
		return ExtM4A
	case MimeVideoWebM, MimeAudioWebM:
		return ExtWebM
	case MimeImageJPEG:
		return "jpg"
	}
	// Try subtype
	parts := strings.Split(base, "/")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}
	return DefaultExt
}

// ExtFromPath returns the media extension of a URL's path, or fallback when
// the path has none or an unrecognised one. Query strings are ignored.
func ExtFromPath(rawURL, fallback string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if knownExts[ext] {
		return ext
	}
	return fallback
}

// Allowed reports whether mime (parameters ignored) is in allowed.
func Allowed(mime string, allowed []string) bool {
	base := Base(mime)
	for _, a := range allowed {
		if Base(a) == base {
			return true
		}
	}
	return false
}

// Sniff detects the content type from the head of r. The returned reader
// replays the consumed bytes so the caller still sees the whole stream.
func Sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, err
	}
	head = head[:n]
	mt := mimetype.Detect(head)
	return Base(mt.String()), io.MultiReader(bytes.NewReader(head), r), nil
}
