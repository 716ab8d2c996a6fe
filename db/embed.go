// Package db provides embedded database schema and seed files.
package db

import _ "embed"

// Schema contains the DDL statements for all checkout tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// DemoSeed is the catalog loaded by seed-db when no file is given.
//
//go:embed seed/demo.json
var DemoSeed []byte
