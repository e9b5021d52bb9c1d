// Package migrations embeds the SQL schema migrations for gymchat.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
