package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
)

type Store struct {
	db *sql.DB
}

var _ calendar.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const eventColumns = `id, organization_id, kind, title, description, location, meeting_link,
	start_time, end_time, coalesce(assigned_user_id, ''), coalesce(assigned_team_id, ''),
	coalesce(lead_id, ''), coalesce(order_id, ''), version, created_at, updated_at`

func (s *Store) ListEvents(ctx context.Context, orgID string, window calendar.Range, filter calendar.AssigneeFilter) ([]calendar.Event, error) {
	var (
		where = []string{"organization_id = $1"}
		args  = []any{orgID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !window.To.IsZero() {
		where = append(where, "start_time <= "+arg(window.To))
	}
	if !window.From.IsZero() {
		where = append(where, "coalesce(end_time, start_time) >= "+arg(window.From))
	}
	if !filter.IsEmpty() {
		var or []string
		if len(filter.UserIDs) > 0 {
			or = append(or, "assigned_user_id in ("+placeholders(filter.UserIDs, arg)+")")
		}
		if len(filter.TeamIDs) > 0 {
			or = append(or, "assigned_team_id in ("+placeholders(filter.TeamIDs, arg)+")")
		}
		if filter.Unassigned {
			or = append(or, "(assigned_user_id is null and assigned_team_id is null)")
		}
		where = append(where, "("+strings.Join(or, " or ")+")")
	}

	query := `select ` + eventColumns + ` from calendar_events where ` + strings.Join(where, " and ") + ` order by start_time asc, id asc`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calendar.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func placeholders(values []string, arg func(any) string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = arg(v)
	}
	return strings.Join(out, ", ")
}

func (s *Store) Get(ctx context.Context, id string) (calendar.Event, error) {
	row := s.db.QueryRowContext(ctx, `select `+eventColumns+` from calendar_events where id = $1`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.Event{}, calendar.ErrNotFound
	}
	return ev, err
}

func (s *Store) Insert(ctx context.Context, ev calendar.Event) (calendar.Event, error) {
	out, err := s.InsertMany(ctx, []calendar.Event{ev})
	if err != nil {
		return calendar.Event{}, err
	}
	return out[0], nil
}

// InsertMany writes the batch in one serializable transaction.
func (s *Store) InsertMany(ctx context.Context, evs []calendar.Event) ([]calendar.Event, error) {
	for _, ev := range evs {
		if err := ev.Validate(); err != nil {
			return nil, err
		}
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]calendar.Event, 0, len(evs))
	for _, ev := range evs {
		if ev.ID == "" {
			ev.ID = ids.New()
		}
		row := tx.QueryRowContext(ctx, `
			insert into calendar_events (id, organization_id, kind, title, description, location, meeting_link,
				start_time, end_time, assigned_user_id, assigned_team_id, lead_id, order_id, version)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
			returning `+eventColumns,
			ev.ID, ev.OrganizationID, string(ev.Kind), ev.Title, ev.Description, ev.Location, ev.MeetingLink,
			ev.StartTime, nullTime(ev.EndTime), nullIfEmpty(ev.Assignee.UserID()), nullIfEmpty(ev.Assignee.TeamID()),
			nullIfEmpty(ev.LeadID), nullIfEmpty(ev.OrderID))
		rec, err := scanEvent(row)
		if err != nil {
			return nil, mapWriteError(err)
		}
		out = append(out, rec)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

// Update locks the row, checks the version and writes the patched record.
// The version predicate is repeated in the update itself.
func (s *Store) Update(ctx context.Context, id string, patch calendar.Patch, expectedVersion int64) (calendar.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return calendar.Event{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanEvent(tx.QueryRowContext(ctx, `select `+eventColumns+` from calendar_events where id = $1 for update`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.Event{}, calendar.ErrNotFound
	}
	if err != nil {
		return calendar.Event{}, err
	}
	if cur.Version != expectedVersion {
		return calendar.Event{}, calendar.ErrStaleVersion
	}
	next := cur.Apply(patch)
	if err := next.Validate(); err != nil {
		return calendar.Event{}, err
	}

	row := tx.QueryRowContext(ctx, `
		update calendar_events
		set kind = $3, title = $4, description = $5, location = $6, meeting_link = $7,
			start_time = $8, end_time = $9, assigned_user_id = $10, assigned_team_id = $11,
			lead_id = $12, order_id = $13, version = version + 1, updated_at = now()
		where id = $1 and version = $2
		returning `+eventColumns,
		id, expectedVersion, string(next.Kind), next.Title, next.Description, next.Location, next.MeetingLink,
		next.StartTime, nullTime(next.EndTime), nullIfEmpty(next.Assignee.UserID()), nullIfEmpty(next.Assignee.TeamID()),
		nullIfEmpty(next.LeadID), nullIfEmpty(next.OrderID))
	updated, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.Event{}, calendar.ErrStaleVersion
	}
	if err != nil {
		return calendar.Event{}, mapWriteError(err)
	}
	if err := tx.Commit(); err != nil {
		return calendar.Event{}, mapWriteError(err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from calendar_events where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return calendar.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (calendar.Event, error) {
	var (
		ev             calendar.Event
		kind           string
		end            sql.NullTime
		userID, teamID string
	)
	err := r.Scan(&ev.ID, &ev.OrganizationID, &kind, &ev.Title, &ev.Description, &ev.Location, &ev.MeetingLink,
		&ev.StartTime, &end, &userID, &teamID, &ev.LeadID, &ev.OrderID, &ev.Version, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return calendar.Event{}, err
	}
	ev.Kind = calendar.Kind(kind)
	if end.Valid {
		t := end.Time
		ev.EndTime = &t
	}
	a, err := calendar.AssigneeFromColumns(userID, teamID)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	ev.Assignee = a
	return ev, nil
}

func mapWriteError(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		return calendar.ErrDuplicate
	case pgErrForeignKeyViolation:
		return &calendar.ValidationError{Field: pgErr.ConstraintName, Reason: "references an unknown record"}
	case pgErrCheckViolation:
		return &calendar.ValidationError{Field: pgErr.ConstraintName, Reason: "violates a table constraint"}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
