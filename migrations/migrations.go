// Package migrations embeds the SQL migration files so they can be applied
// at startup and from integration tests without relying on the working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
