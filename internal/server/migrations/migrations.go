// Package migrations embeds the goose SQL migration files applied against
// the PostgreSQL schema at startup.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
