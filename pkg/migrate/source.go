// Package migrate owns the Postgres schema: goose SQL migrations embedded in
// the binary, a validator for CI, and a generator for new files.
package migrate

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var embedded embed.FS

// SourceDir is where new migrations are written, relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		// the path is a compile-time constant
		panic(err)
	}
	return sub
}

// Source picks the on-disk directory when one is given, else the embedded set.
func Source(dir string) fs.FS {
	if dir == "" {
		return Embedded()
	}
	return os.DirFS(dir)
}
