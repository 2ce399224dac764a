// Package migrations embeds the Postgres schema files applied by the migration runner.
package migrations

import "embed"

// FS holds the versioned NNN_name.sql files.
//
//go:embed *.sql
var FS embed.FS
