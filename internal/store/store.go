package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

var ErrNotFound = errors.New("not found")

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store archives closed meeting sessions in Postgres.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

const schema = `
create table if not exists meeting_sessions (
	id               text primary key,
	name             text not null,
	state            text not null,
	worker_id        text not null default '',
	thread_id        text not null default '',
	started_at       timestamptz not null,
	ended_at         timestamptz,
	duration_seconds bigint not null default 0,
	title            text not null default '',
	summary          text not null default '',
	todolist         text not null default '',
	transcript       text not null default '',
	upload_ok        boolean not null default false,
	updated_at       timestamptz not null default now()
);
create table if not exists meeting_participants (
	session_id text not null references meeting_sessions(id) on delete cascade,
	position   int not null,
	name       text not null,
	primary key (session_id, position)
)`

// Migrate creates the archive tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveSession upserts snap and replaces its participant list.
func (s *Store) SaveSession(ctx context.Context, snap models.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const upsert = `
insert into meeting_sessions (id, name, state, worker_id, thread_id, started_at, ended_at, duration_seconds, title, summary, todolist, transcript, upload_ok)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
on conflict (id) do update set
	state = excluded.state,
	worker_id = excluded.worker_id,
	thread_id = excluded.thread_id,
	ended_at = excluded.ended_at,
	duration_seconds = excluded.duration_seconds,
	title = excluded.title,
	summary = excluded.summary,
	todolist = excluded.todolist,
	transcript = excluded.transcript,
	upload_ok = excluded.upload_ok,
	updated_at = now()`
	if _, err := tx.Exec(ctx, upsert,
		snap.ID, snap.Name, string(snap.State), snap.WorkerID, snap.ThreadID,
		snap.StartTime, timePtr(snap.EndTime), int64(snap.Duration/time.Second),
		snap.Title, snap.Summary, snap.Todolist, snap.Transcript, snap.UploadOK,
	); err != nil {
		return fmt.Errorf("upsert session %s: %w", snap.ID, err)
	}

	if _, err := tx.Exec(ctx, `delete from meeting_participants where session_id = $1`, snap.ID); err != nil {
		return fmt.Errorf("clear participants of %s: %w", snap.ID, err)
	}
	for i, name := range snap.Participants {
		if _, err := tx.Exec(ctx,
			`insert into meeting_participants (session_id, position, name) values ($1, $2, $3)`,
			snap.ID, i, name,
		); err != nil {
			return fmt.Errorf("insert participant of %s: %w", snap.ID, err)
		}
	}
	return tx.Commit(ctx)
}

const selectSessions = `
select s.id, s.name, s.state, s.worker_id, s.thread_id, s.started_at, s.ended_at, s.duration_seconds,
       s.title, s.summary, s.todolist, s.transcript, s.upload_ok,
       coalesce(array_agg(p.name order by p.position) filter (where p.name is not null), '{}')
from meeting_sessions s
left join meeting_participants p on p.session_id = s.id`

// GetSession returns the archived session id.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Snapshot, error) {
	q := selectSessions + `
where s.id = $1
group by s.id`
	snap, err := scanSnapshot(s.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return snap, nil
}

// ListSessions returns the most recently started sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	q := selectSessions + `
group by s.id
order by s.started_at desc
limit $1`
	rows, err := s.db.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

// DeleteEndedBefore removes archived sessions that ended before cutoff.
func (s *Store) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `delete from meeting_sessions where ended_at is not null and ended_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanSnapshot(row pgx.Row) (*models.Snapshot, error) {
	var (
		out      models.Snapshot
		state    string
		endedAt  *time.Time
		duration int64
	)
	if err := row.Scan(
		&out.ID, &out.Name, &state, &out.WorkerID, &out.ThreadID, &out.StartTime, &endedAt, &duration,
		&out.Title, &out.Summary, &out.Todolist, &out.Transcript, &out.UploadOK,
		&out.Participants,
	); err != nil {
		return nil, err
	}
	out.State = models.SessionState(state)
	out.Duration = time.Duration(duration) * time.Second
	if endedAt != nil {
		out.EndTime = *endedAt
	}
	return &out, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
