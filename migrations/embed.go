// Package migrations embeds the SQL schema into the binary.
//
// The files are compiled into the executable so the playout service can
// migrate its store without the SQL files present on disk.
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
