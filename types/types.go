package types

import (
	"strings"
	"time"
)

// Quality names a media variant returned by the resolver API.
type Quality string

const (
	QualityHD    Quality = "HD"
	QualitySD    Quality = "SD"
	QualityAudio Quality = "AUDIO"
	// QualityBest selects HD, then SD, then audio.
	QualityBest Quality = "BEST"
)

// MediaLinks holds direct media URLs for each quality.
type MediaLinks struct {
	HD    string `json:"hd,omitempty"`
	SD    string `json:"sd,omitempty"`
	Audio string `json:"audio,omitempty"`
}

// Get returns the URL for q, or "" when absent. QualityBest is not resolved here.
func (l MediaLinks) Get(q Quality) string {
	switch q {
	case QualityHD:
		return strings.TrimSpace(l.HD)
	case QualitySD:
		return strings.TrimSpace(l.SD)
	case QualityAudio:
		return strings.TrimSpace(l.Audio)
	}
	return ""
}

// Empty reports whether no link is present.
func (l MediaLinks) Empty() bool {
	return l.Get(QualityHD) == "" && l.Get(QualitySD) == "" && l.Get(QualityAudio) == ""
}

// VideoInfo describes a resolved video.
type VideoInfo struct {
	SourceURL   string     `json:"source_url"`
	Description string     `json:"description,omitempty"`
	Creator     string     `json:"creator,omitempty"`
	Thumbnail   string     `json:"thumbnail,omitempty"`
	Links       MediaLinks `json:"links"`
	Provider    string     `json:"provider"`
	ResolvedAt  time.Time  `json:"resolved_at"`
}

// HistoryEntry is a resolved video remembered for an anonymous user.
type HistoryEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	SourceURL   string    `json:"source_url"`
	Description string    `json:"description"`
	Creator     string    `json:"creator,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	VideoHD     string    `json:"video_hd,omitempty"`
	VideoSD     string    `json:"video_sd,omitempty"`
	Audio       string    `json:"audio,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ImageRecord is the metadata row of an uploaded image.
type ImageRecord struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ShortCode   string    `json:"-"`
	StoragePath string    `json:"storage_path"`
	FileType    string    `json:"file_type"`
	FileSize    int64     `json:"file_size"`
	CreatedAt   time.Time `json:"created_at"`
}
