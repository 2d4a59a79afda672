package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gamehub/backend/internal/infrastructure/config"
	"github.com/gamehub/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newMockDatabase wraps a sqlmock connection in the postgres dialector so
// repositories emit the same SQL they do in production
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

func TestOpen(t *testing.T) {
	t.Run("applies pool limits", func(t *testing.T) {
		cfg := &config.DatabaseConfig{MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: 30, ConnMaxIdleTime: 5}
		db, err := Open(sqlite.Open(":memory:"), cfg, nil)
		require.NoError(t, err)
		defer db.Close()

		sqlDB, err := db.SQL()
		require.NoError(t, err)
		assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
		assert.NoError(t, db.PingContext(context.Background()))
	})

	t.Run("nil config keeps driver defaults", func(t *testing.T) {
		db, err := Open(sqlite.Open(":memory:"), nil, nil)
		require.NoError(t, err)
		defer db.Close()

		sqlDB, err := db.SQL()
		require.NoError(t, err)
		assert.Zero(t, sqlDB.Stats().MaxOpenConnections)
	})

	t.Run("unreachable store fails the ping", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockDB.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		_, err = Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ping database")
	})
}

func TestDatabase_AutoMigrate(t *testing.T) {
	db, err := Open(sqlite.Open(":memory:"), &config.DatabaseConfig{MaxOpenConns: 1}, nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.AutoMigrate())
	for _, m := range models.AllModels() {
		assert.True(t, db.DB.Migrator().HasTable(m), "%T", m)
	}
}

func TestDatabase_PingAfterClose(t *testing.T) {
	db, mock, _ := newMockDatabase(t)
	mock.ExpectClose()

	require.NoError(t, db.Close())
	assert.Error(t, db.PingContext(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
