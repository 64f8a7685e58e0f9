// Package migrations embeds the engine database schema migrations.
package migrations

import "embed"

// FS holds the *.sql migration files, named {version}_{title}.{up|down}.sql.
//
//go:embed *.sql
var FS embed.FS
