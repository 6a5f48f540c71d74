package migrations

import "embed"

// SQLite holds the ordered schema migrations.
//
//go:embed *.sql
var SQLite embed.FS
