// Package migrations embeds the SQL schema applied at service boot.
package migrations

import "embed"

// Files holds every .sql file in this directory, applied in lexical order.
//
//go:embed *.sql
var Files embed.FS
