// Package migrate applies the calendar schema and the demo directory seeds
// shipped inside the binary. Every script runs in its own transaction
// together with the journal row that records it.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/obs"
)

//go:embed sql/*.sql seeds/*.sql
var bundled embed.FS

// Embedded returns the schema scripts and the seed scripts.
func Embedded() (schema, seeds fs.FS) {
	schema, _ = fs.Sub(bundled, "sql")
	seeds, _ = fs.Sub(bundled, "seeds")
	return schema, seeds
}

var ErrNothingApplied = errors.New("migrate: no schema script applied")

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Record is one journal row.
type Record struct {
	Name      string
	AppliedAt time.Time
}

func (r Record) String() string {
	return r.Name + "\t" + r.AppliedAt.UTC().Format(time.RFC3339)
}

// journal is a bookkeeping table of applied script names.
type journal string

func (j journal) create(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `create table if not exists `+string(j)+` (
		name text primary key,
		applied_at timestamptz not null default now()
	)`)
	return err
}

func (j journal) records(ctx context.Context, db *sql.DB) ([]Record, error) {
	rows, err := db.QueryContext(ctx, `select name, applied_at from `+string(j)+` order by applied_at, name`)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", j, err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Name, &r.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j journal) add(ctx context.Context, tx *sql.Tx, name string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `insert into `+string(j)+` (name, applied_at) values ($1, $2)`, name, at)
	return err
}

func (j journal) remove(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, `delete from `+string(j)+` where name = $1`, name)
	return err
}

// Manager runs schema scripts (NNNN_name.up.sql with a matching .down.sql)
// and seed scripts (any .sql) against db.
type Manager struct {
	db     *sql.DB
	schema fs.FS
	seeds  fs.FS
	now    func() time.Time

	schemaJournal journal
	seedJournal   journal
}

// NewManager accepts nil for either filesystem.
func NewManager(db *sql.DB, schema, seeds fs.FS) *Manager {
	return &Manager{
		db:            db,
		schema:        schema,
		seeds:         seeds,
		now:           time.Now,
		schemaJournal: "schema_migrations",
		seedJournal:   "schema_seeds",
	}
}

// Up applies every schema script not yet in the journal, in name order.
func (m *Manager) Up(ctx context.Context) error {
	n, err := m.applyPending(ctx, m.schema, upSuffix, m.schemaJournal)
	if n > 0 {
		obs.Log(obs.LevelInfo, "schema migrated", map[string]any{"applied": n})
	}
	return err
}

// Seed applies every seed script not yet in the journal. Seeds are never
// rolled back.
func (m *Manager) Seed(ctx context.Context) error {
	n, err := m.applyPending(ctx, m.seeds, ".sql", m.seedJournal)
	if n > 0 {
		obs.Log(obs.LevelInfo, "seeds applied", map[string]any{"applied": n})
	}
	return err
}

// Down reverts the most recently applied schema script.
func (m *Manager) Down(ctx context.Context) error {
	history, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return ErrNothingApplied
	}
	last := history[len(history)-1].Name
	revert := strings.TrimSuffix(last, upSuffix) + downSuffix
	body, err := readScript(m.schema, revert)
	if err != nil {
		return fmt.Errorf("revert %s: %w", last, err)
	}
	err = m.inTx(ctx, func(tx *sql.Tx) error {
		if err := execScript(ctx, tx, body); err != nil {
			return err
		}
		return m.schemaJournal.remove(ctx, tx, last)
	})
	if err != nil {
		return fmt.Errorf("revert %s: %w", last, err)
	}
	obs.Log(obs.LevelInfo, "schema reverted", map[string]any{"name": last})
	return nil
}

// Status lists the applied schema scripts, oldest first.
func (m *Manager) Status(ctx context.Context) ([]Record, error) {
	if err := m.schemaJournal.create(ctx, m.db); err != nil {
		return nil, err
	}
	return m.schemaJournal.records(ctx, m.db)
}

func (m *Manager) applyPending(ctx context.Context, fsys fs.FS, suffix string, j journal) (int, error) {
	if err := j.create(ctx, m.db); err != nil {
		return 0, err
	}
	done, err := j.records(ctx, m.db)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(done))
	for _, r := range done {
		seen[r.Name] = struct{}{}
	}
	scripts, err := listScripts(fsys, suffix)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, p := range scripts {
		name := path.Base(p)
		if _, ok := seen[name]; ok {
			continue
		}
		body, err := readScript(fsys, p)
		if err != nil {
			return applied, err
		}
		err = m.inTx(ctx, func(tx *sql.Tx) error {
			if err := execScript(ctx, tx, body); err != nil {
				return err
			}
			return j.add(ctx, tx, name, m.now().UTC())
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		applied++
	}
	return applied, nil
}

func (m *Manager) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// listScripts returns the paths ending in suffix, ordered by file name.
func listScripts(fsys fs.FS, suffix string) ([]string, error) {
	if fsys == nil {
		return nil, nil
	}
	var out []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case !d.IsDir() && strings.HasSuffix(p, suffix):
			out = append(out, p)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return path.Base(out[i]) < path.Base(out[j]) })
	return out, nil
}

func readScript(fsys fs.FS, name string) (string, error) {
	if fsys == nil {
		return "", fs.ErrNotExist
	}
	b, err := fs.ReadFile(fsys, name)
	return string(b), err
}

func execScript(ctx context.Context, tx *sql.Tx, body string) error {
	for _, stmt := range statements(body) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// statements cuts a script at semicolons that sit outside quoted literals
// and -- comments. Blank statements are dropped.
func statements(script string) []string {
	var (
		out     []string
		start   int
		quote   rune
		comment bool
	)
	flush := func(end int) {
		if s := strings.TrimSpace(script[start:end]); !onlyComments(s) {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range script {
		switch {
		case comment:
			if r == '\n' {
				comment = false
			}
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '-' && strings.HasPrefix(script[i:], "--"):
			comment = true
		case r == ';':
			flush(i + 1)
		}
	}
	flush(len(script))
	return out
}

func onlyComments(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && line != ";" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
