// Package resolverdb holds all the migrations for the resolver database
package resolverdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the resolver database
var Migrations = migrate.NewMigrations()
