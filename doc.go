// Package twitvid provides a high-level API to resolve and download videos
// from Twitter/X posts.
//
// Features:
//   - Resolution through pluggable downloader APIs, or a user script
//   - HD, SD and audio variants with best-available fallback
//   - Resumable chunked downloads with progress reporting and rate limiting
//
// The short-code codec used by the image link service lives in the
// shortcode package; the HTTP service in the server package.
package twitvid
