// Package resolver turns a Twitter/X post URL into direct media links by
// asking a third-party downloader API.
//
// Supported providers:
//
//	sparky  {"status": bool, "message": string, "data": {"HD", "SD", "thumbnail"}}
//	cyril   {"success": bool, "description", "thumbnail", "video_sd", "video_hd", "audio", "creator"}
//	script  any JSON, mapped by a user script (see package script)
//
// Response bodies are decoded according to Content-Encoding (gzip, br,
// deflate). Failures wrap the sentinels of package errs:
//
//	ErrInvalidURL      the input is not a post URL
//	ErrRateLimited     the API answered 429
//	ErrProviderFailed  any other non-2xx status or an unreadable body
//	ErrVideoNotFound   the API reported failure
//	ErrNoLinks         the API succeeded without HD, SD or audio
package resolver
