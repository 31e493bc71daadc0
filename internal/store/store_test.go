package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

var sessionCols = []string{
	"id", "name", "state", "worker_id", "thread_id", "started_at", "ended_at", "duration_seconds",
	"title", "summary", "todolist", "transcript", "upload_ok", "participants",
}

func closedSnapshot() models.Snapshot {
	start := time.Date(2025, 3, 4, 10, 15, 30, 0, time.UTC)
	return models.Snapshot{
		ID:           "vc-1",
		Name:         "meeting-101530",
		State:        models.StateClosed,
		WorkerID:     "w1",
		ThreadID:     "th-1",
		StartTime:    start,
		EndTime:      start.Add(90 * time.Second),
		Duration:     90 * time.Second,
		Participants: []string{"Alice", "Bob"},
		Title:        "[20250304] Sync",
		Summary:      "summary",
		Todolist:     "- [ ] todo",
		Transcript:   "[2025-03-04 10:15:31] Alice: hi",
		UploadOK:     true,
	}
}

func TestSaveSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	snap := closedSnapshot()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into meeting_sessions")).
		WithArgs("vc-1", "meeting-101530", "closed", "w1", "th-1", snap.StartTime, pgxmock.AnyArg(), int64(90),
			"[20250304] Sync", "summary", "- [ ] todo", snap.Transcript, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("delete from meeting_participants")).
		WithArgs("vc-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(regexp.QuoteMeta("insert into meeting_participants")).
		WithArgs("vc-1", 0, "Alice").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("insert into meeting_participants")).
		WithArgs("vc-1", 1, "Bob").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := New(mock).SaveSession(context.Background(), snap); err != nil {
		t.Fatalf("SaveSession returned err: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveSession_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into meeting_sessions")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = New(mock).SaveSession(context.Background(), closedSnapshot())
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetSession(t *testing.T) {
	snap := closedSnapshot()
	end := snap.EndTime

	tcs := map[string]struct {
		rows    *pgxmock.Rows
		err     error
		wantErr error
	}{
		"found": {
			rows: pgxmock.NewRows(sessionCols).AddRow(
				snap.ID, snap.Name, "closed", snap.WorkerID, snap.ThreadID, snap.StartTime, &end, int64(90),
				snap.Title, snap.Summary, snap.Todolist, snap.Transcript, true, []string{"Alice", "Bob"},
			),
		},
		"missing": {
			err:     pgx.ErrNoRows,
			wantErr: ErrNotFound,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("pgxmock pool: %v", err)
			}
			defer mock.Close()

			exp := mock.ExpectQuery(regexp.QuoteMeta("select s.id, s.name, s.state")).WithArgs("vc-1")
			if tc.err != nil {
				exp.WillReturnError(tc.err)
			} else {
				exp.WillReturnRows(tc.rows)
			}

			got, err := New(mock).GetSession(context.Background(), "vc-1")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetSession returned err: %v", err)
			}
			if got.State != models.StateClosed || got.Duration != 90*time.Second || !got.EndTime.Equal(end) {
				t.Fatalf("unexpected snapshot %+v", got)
			}
			if len(got.Participants) != 2 || got.Participants[1] != "Bob" {
				t.Fatalf("unexpected participants %v", got.Participants)
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(sessionCols).
		AddRow("vc-2", "meeting-110000", "closed", "w2", "", start.Add(time.Hour), (*time.Time)(nil), int64(0),
			models.TitleUnavailable, models.SummaryUnavailable, models.TodolistUnavailable, models.TranscriptUnavailable, false, []string{}).
		AddRow("vc-1", "meeting-100000", "closed", "w1", "th-1", start, (*time.Time)(nil), int64(60),
			"[20250304] Sync", "summary", "todo", "t", true, []string{"Alice"})
	mock.ExpectQuery(regexp.QuoteMeta("select s.id, s.name, s.state")).
		WithArgs(50).
		WillReturnRows(rows)

	got, err := New(mock).ListSessions(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListSessions returned err: %v", err)
	}
	if len(got) != 2 || got[0].ID != "vc-2" || !got[0].EndTime.IsZero() || got[1].Duration != time.Minute {
		t.Fatalf("unexpected sessions %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteEndedBefore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("delete from meeting_sessions where ended_at is not null")).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := New(mock).DeleteEndedBefore(context.Background(), cutoff)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 deleted rows, got %d (%v)", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("create table if not exists meeting_sessions")).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	if err := New(mock).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate returned err: %v", err)
	}
}
