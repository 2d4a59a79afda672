// Package migrations embeds the SQL schema migrations so the server, the
// migrate CLI and integration tests share one source.
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql file
//
//go:embed *.sql
var FS embed.FS
