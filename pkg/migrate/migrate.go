package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source locates a set of goose migrations. A nil FS reads from disk.
type Source struct {
	FS  fs.FS
	Dir string
}

// Embedded returns the migrations compiled into the binary.
func Embedded() Source { return Source{FS: embedded, Dir: "migrations"} }

// OnDisk reads migrations from dir relative to the working directory.
func OnDisk(dir string) Source { return Source{Dir: dir} }

// bind points goose at src and returns a func restoring the default base FS.
func (src Source) bind() (func(), error) {
	if src.Dir == "" {
		return nil, errors.New("migration dir is required")
	}
	goose.SetBaseFS(src.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		goose.SetBaseFS(nil)
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	return func() { goose.SetBaseFS(nil) }, nil
}

// Run executes a goose command such as up, down or status.
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	if db == nil {
		return errors.New("db is required")
	}
	reset, err := src.bind()
	if err != nil {
		return err
	}
	defer reset()

	if err := goose.RunContext(ctx, command, db, src.Dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// To moves the schema up or down until it sits at version.
func To(ctx context.Context, db *sql.DB, src Source, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", version, err)
	}
	if db == nil {
		return errors.New("db is required")
	}
	reset, err := src.bind()
	if err != nil {
		return err
	}
	defer reset()

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, src.Dir, target)
	case current > target:
		err = goose.DownToContext(ctx, db, src.Dir, target)
	}
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, target, err)
	}
	return nil
}
