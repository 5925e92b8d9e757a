// Package store persists twitvid state.
//
// DB wraps a SQLite database (modernc.org/sqlite, no cgo) with two tables:
// images, holding upload metadata keyed by a unique short code, and
// download_history, holding resolved videos per anonymous user, unique on
// (description, user_identifier).
//
// FileBlobStore keeps uploaded objects on the local filesystem under
// <root>/<bucket>/<path>, with content type and cache control in a JSON
// sidecar under <root>/.meta.
package store
