package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
)

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	for range schema {
		mock.ExpectExec(`CREATE (TABLE|INDEX) IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMigrateStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("permission denied")
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS people`).WillReturnError(boom)
	if err := Migrate(context.Background(), db); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestRedisHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr())
	defer r.Client.Close()

	if !r.Healthy(context.Background()) {
		t.Error("expected healthy redis")
	}
	mr.Close()
	if r.Healthy(context.Background()) {
		t.Error("expected unhealthy redis after shutdown")
	}

	var nilRedis *Redis
	if nilRedis.Healthy(context.Background()) {
		t.Error("expected nil redis to be unhealthy")
	}
}

func TestDBHealthyNil(t *testing.T) {
	var d *DB
	if d.Healthy(context.Background()) {
		t.Error("expected nil db to be unhealthy")
	}
	if err := d.Close(); err != nil {
		t.Errorf("close nil db: %v", err)
	}
}
