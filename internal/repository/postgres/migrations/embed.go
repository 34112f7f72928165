package migrations

import "embed"

// FS contains the embedded PostgreSQL migrations.
//
//go:embed *.sql
var FS embed.FS
