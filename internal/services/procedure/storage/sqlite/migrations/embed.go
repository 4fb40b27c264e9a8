package migrations

import "embed"

// FS contains embedded SQLite migrations for procedure engine storage.
//
//go:embed *.sql
var FS embed.FS
