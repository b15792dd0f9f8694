// Package db embeds the SQL schema applied on service start.
package db

import _ "embed"

// Schema creates catalog, client, order and user tables when they are missing.
//
//go:embed migrations/001_schema.sql
var Schema string
