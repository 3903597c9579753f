package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
)

// Postgres reads the directory_subjects and team_members tables.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const subjectColumns = `s.id, s.organization_id, s.kind, s.name, coalesce(s.role, ''), s.cities,
	coalesce((select json_agg(m.team_id order by m.team_id) from team_members m where m.user_id = s.id), '[]')`

func (p *Postgres) Subject(ctx context.Context, id string) (Subject, error) {
	row := p.db.QueryRowContext(ctx, `select `+subjectColumns+` from directory_subjects s where s.id = $1`, id)
	sub, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, ErrNotFound
	}
	return sub, err
}

func (p *Postgres) TeamMembers(ctx context.Context, teamID string) ([]string, error) {
	var exists bool
	if err := p.db.QueryRowContext(ctx, `select exists(select 1 from directory_subjects where id = $1 and kind = 'team')`, teamID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	rows, err := p.db.QueryContext(ctx, `select user_id from team_members where team_id = $1 order by user_id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) All(ctx context.Context) ([]Subject, error) {
	rows, err := p.db.QueryContext(ctx, `select `+subjectColumns+` from directory_subjects s order by s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubject(r rowScanner) (Subject, error) {
	var (
		sub          Subject
		kind, role   string
		cities, team []byte
	)
	if err := r.Scan(&sub.ID, &sub.OrganizationID, &kind, &sub.Name, &role, &cities, &team); err != nil {
		return Subject{}, err
	}
	sub.Kind = Kind(kind)
	sub.Role = auth.Role(role)
	if len(cities) > 0 {
		if err := json.Unmarshal(cities, &sub.Cities); err != nil {
			return Subject{}, fmt.Errorf("decode cities of %s: %w", sub.ID, err)
		}
	}
	if len(team) > 0 {
		if err := json.Unmarshal(team, &sub.TeamIDs); err != nil {
			return Subject{}, fmt.Errorf("decode teams of %s: %w", sub.ID, err)
		}
	}
	return sub, nil
}
