package migrations

import "embed"

// FS - встроенные миграции SQLite.
//
//go:embed *.sql
var FS embed.FS
