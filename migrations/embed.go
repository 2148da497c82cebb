// Package migrations embeds the SQL migration files into the binary, so
// the control history schema is created without files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS

// Dir is the directory within FS passed to database.Migrate.
const Dir = "."
