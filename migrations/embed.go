// Package migrations embeds the SQL schema migrations so the worker and the
// migrate CLI apply the same files without a deployed migrations directory.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file in this directory
//
//go:embed *.sql
var FS embed.FS
