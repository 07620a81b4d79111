package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	migrationsDir      = "sql/migrations"
	migrationQueryWait = 5 * time.Second
	// migrationLockKey - ключ pg_advisory_lock, общий для всех инстансов сервиса.
	migrationLockKey = int64(0x504f53)

	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// 0002_orders.up.sql -> версия 2, имя orders, направление up.
var migrationFileName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

func (m migration) String() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

// script возвращает тело миграции и запрос, фиксирующий её в schema_migrations.
func (m migration) script(dir migrationDirection) (body, ledger string, args []any) {
	if dir == migrationDown {
		return m.down, `DELETE FROM schema_migrations WHERE version = $1`, []any{m.version}
	}
	return m.up, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, []any{m.version, m.name}
}

// migrationSet отсортирован по версии.
type migrationSet []migration

func (s migrationSet) find(version int64) (migration, bool) {
	i, ok := slices.BinarySearchFunc(s, version, func(m migration, v int64) int { return cmp.Compare(m.version, v) })
	if !ok {
		return migration{}, false
	}
	return s[i], true
}

func (s migrationSet) pending(applied []int64) migrationSet {
	var out migrationSet
	for _, m := range s {
		if !slices.Contains(applied, m.version) {
			out = append(out, m)
		}
	}
	return out
}

// MigrationState - положение схемы относительно встроенных миграций.
type MigrationState struct {
	Version int64
	Applied int
	Pending int
}

// MigrateUp применяет steps ещё не применённых миграций, 0 означает все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает steps последних миграций, не меньше одной.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationDown, max(steps, 1))
}

// Migrate принимает направление строкой, как его передают из CLI.
func (s *Store) Migrate(ctx context.Context, direction string, steps int) error {
	switch dir := migrationDirection(strings.ToLower(strings.TrimSpace(direction))); dir {
	case migrationUp:
		return s.MigrateUp(ctx, steps)
	case migrationDown:
		return s.MigrateDown(ctx, steps)
	default:
		return fmt.Errorf("unsupported migration direction %q", direction)
	}
}

func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errStoreNotInitialized
	}
	set, err := parseMigrations(migrationsFS)
	if err != nil {
		return MigrationState{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, migrationQueryWait)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return MigrationState{}, fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := appliedVersions(ctx, s.db)
	if err != nil {
		return MigrationState{}, err
	}

	state := MigrationState{Applied: len(applied), Pending: len(set.pending(applied))}
	if len(applied) > 0 {
		state.Version = applied[len(applied)-1]
	}
	return state, nil
}

func (s *Store) migrate(ctx context.Context, dir migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if dir != migrationUp && dir != migrationDown {
		return fmt.Errorf("unsupported migration direction %q", dir)
	}
	set, err := parseMigrations(migrationsFS)
	if err != nil {
		return err
	}

	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		var plan []migration
		if dir == migrationUp {
			plan = set.pending(applied)
			if steps > 0 && len(plan) > steps {
				plan = plan[:steps]
			}
		} else {
			for i := len(applied) - 1; i >= 0 && len(plan) < steps; i-- {
				m, ok := set.find(applied[i])
				if !ok {
					return fmt.Errorf("applied migration %d has no embedded files", applied[i])
				}
				plan = append(plan, m)
			}
		}

		for _, m := range plan {
			if err := runMigration(ctx, conn, m, dir); err != nil {
				return err
			}
		}
		return nil
	})
}

// withMigrationLock держит advisory lock на выделенном соединении,
// чтобы параллельно стартующие инстансы не применяли миграции дважды.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationQueryWait)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("take migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return fn(conn)
}

// runMigration выполняет тело и запись в schema_migrations одной транзакцией.
func runMigration(ctx context.Context, conn *sql.Conn, m migration, dir migrationDirection) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s %s: begin: %w", dir, m, err)
	}

	body, ledger, args := m.script(dir)
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s %s: %w", dir, m, err)
	}
	if _, err := tx.ExecContext(ctx, ledger, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s %s: record version: %w", dir, m, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s %s: commit: %w", dir, m, err)
	}
	return nil
}

// appliedVersions возвращает применённые версии по возрастанию.
func appliedVersions(ctx context.Context, db dbtx) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// parseMigrations собирает пары up/down из каталога sql/migrations.
func parseMigrations(fsys fs.FS) (migrationSet, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationFileName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("migration file %s: name must look like 0001_name.up.sql", entry.Name())
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration file %s: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file %s is empty", entry.Name())
		}

		m, seen := byVersion[version]
		if !seen {
			m = &migration{version: version, name: parts[2]}
			byVersion[version] = m
		}
		if m.name != parts[2] {
			return nil, fmt.Errorf("migration %d is named both %s and %s", version, m.name, parts[2])
		}

		target := &m.up
		if migrationDirection(parts[3]) == migrationDown {
			target = &m.down
		}
		if *target != "" {
			return nil, fmt.Errorf("migration %s: duplicate %s file", m, parts[3])
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	set := make(migrationSet, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down files", m)
		}
		set = append(set, *m)
	}
	slices.SortFunc(set, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return set, nil
}
