package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"smarthome/internal/models"
	"smarthome/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
)

var scheduleCols = []string{"id", "appliance_id", "user_id", "action", "cron_expression", "timezone",
	"is_active", "last_run_at", "next_run_at", "created_at", "updated_at"}

func TestScheduleSQLite_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewScheduleSQLite(db)
	next := created.Add(time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).
		WithArgs(int64(5), int64(2), "on", "0 7 * * *", "Europe/Berlin", true, next, created, created).
		WillReturnResult(sqlmock.NewResult(12, 1))

	s, err := repo.Create(context.Background(), models.Schedule{
		ApplianceID: 5, UserID: 2, Action: "on", CronExpression: "0 7 * * *", Timezone: "Europe/Berlin",
		IsActive: true, NextRunAt: &next, CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID != 12 {
		t.Fatalf("expected id 12, got %d", s.ID)
	}
}

func TestScheduleSQLite_ListActive_SkipsDeletedAppliances(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewScheduleSQLite(db)
	last := created.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.is_active = 1 AND a.deleted_at IS NULL")).
		WillReturnRows(sqlmock.NewRows(scheduleCols).
			AddRow(1, 5, 2, "on", "0 7 * * *", "UTC", true, last, nil, created, created).
			AddRow(2, 6, 2, "off", "0 23 * * *", "UTC", true, nil, nil, created, created))

	list, err := repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(list))
	}
	if list[0].LastRunAt == nil || !list[0].LastRunAt.Equal(last) || list[1].LastRunAt != nil {
		t.Fatalf("unexpected last_run_at values: %+v", list)
	}
}

func TestScheduleSQLite_MarkRun(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewScheduleSQLite(db)
	minute := created.Add(time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET last_run_at = ?, next_run_at = ? WHERE id = ?")).
		WithArgs(minute, nil, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET last_run_at = ?")).
		WithArgs(minute, nil, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkRun(context.Background(), 1, minute, nil); err != nil {
		t.Fatalf("MarkRun() error = %v", err)
	}
	if err := repo.MarkRun(context.Background(), 99, minute, nil); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduleSQLite_Delete_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewScheduleSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedules WHERE id = ?")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 3); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
