// Package migrations holds the SQL schema of the postgres submission store.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is applied by the migrate command and at server start.
var Migrations = migrate.NewMigrations()
