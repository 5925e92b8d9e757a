// Package config loads twitvid configuration.
//
// Sources are applied in increasing priority:
//
//  1. Default() values
//  2. YAML file (optional)
//  3. TWITVID_* environment variables
//  4. explicit overrides (CLI flags)
//
// Environment variables map TWITVID_SECTION_KEY to section.key. Only the first
// underscore after the prefix separates the section, so
// TWITVID_SERVER_PUBLIC_ORIGIN sets server.public_origin.
package config
