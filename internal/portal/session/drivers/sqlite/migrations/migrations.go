// Package migrations embeds the session store schema so the binary carries
// its own migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
