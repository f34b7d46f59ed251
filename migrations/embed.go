// Package migrations embeds the SQL schema so the server binary can migrate
// without a migrations directory on disk.
package migrations

import "embed"

// FS holds the NNN_name.sql migration files
//
//go:embed *.sql
var FS embed.FS
