// Package integration runs the partner API against a real PostgreSQL
// started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/infrastructure/migration"
	"github.com/gamehub/backend/internal/infrastructure/persistence"
	"github.com/gamehub/backend/migrations"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	sharedContainer    testcontainers.Container
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string
)

// TestDB is a migrated database connection
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	t         *testing.T
}

func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration tests need Docker; skipped with -short")
	}
}

func startPostgres(t *testing.T, dbName string) (testcontainers.Container, string) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")
	return container, dsn
}

// NewTestDB starts a dedicated container for one test
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	container, dsn := startPostgres(t, "gamehub_test")
	db, sqlDB := connectToDatabase(t, dsn)
	runMigrations(t, sqlDB)

	testDB := &TestDB{DB: db, SqlDB: sqlDB, Container: container, DSN: dsn, t: t}
	t.Cleanup(testDB.Close)
	return testDB
}

// NewSharedTestDB reuses one container per package. Tests must call
// CleanTables or otherwise avoid depending on an empty schema.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer == nil {
		container, dsn := startPostgres(t, "gamehub_shared_test")
		_, sqlDB := connectToDatabase(t, dsn)
		runMigrations(t, sqlDB)
		_ = sqlDB.Close()

		sharedContainer = container
		sharedContainerDSN = dsn
	}

	db, sqlDB := connectToDatabase(t, sharedContainerDSN)
	testDB := &TestDB{DB: db, SqlDB: sqlDB, Container: sharedContainer, DSN: sharedContainerDSN, t: t}
	t.Cleanup(func() {
		_ = testDB.SqlDB.Close()
	})
	return testDB
}

// Close closes the connection and terminates a dedicated container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil && tdb.Container != sharedContainer {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// CleanTables empties every application table, children first
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()
	err := tdb.DB.Exec(`TRUNCATE TABLE ledger_entries, unreconciled_settlements, end_users, partners CASCADE`).Error
	require.NoError(tdb.t, err, "Failed to truncate tables")
}

func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	gormConfig := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return db, sqlDB
}

// runMigrations applies the embedded SQL migrations. The migrator is not
// closed since that would close sqlDB too.
func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()
	m, err := migration.NewFromFS(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err, "Failed to load migrations")
	require.NoError(t, m.Up(), "Failed to run migrations")
}

// Hierarchy is a seeded admin > head office > main office chain
type Hierarchy struct {
	Admin *partner.Partner
	Head  *partner.Partner
	Main  *partner.Partner
}

const seedPassword = "password123"

// SeedHierarchy inserts a system admin, a head office holding headBalance
// and a main office. Both offices carry aggregator credentials.
func (tdb *TestDB) SeedHierarchy(headBalance decimal.Decimal) *Hierarchy {
	tdb.t.Helper()
	ctx := context.Background()
	repo := persistence.NewGormPartnerRepository(tdb.DB)

	create := func(username string, pt partner.PartnerType, parent *partner.Partner, rates partner.CommissionRates, opcode string) *partner.Partner {
		p, err := partner.NewPartner(username, "", pt, parent, rates)
		require.NoError(tdb.t, err)
		require.NoError(tdb.t, p.SetPassword(seedPassword))
		if opcode != "" {
			p.SetCredentials(partner.Credentials{Opcode: opcode, SecretKey: opcode + "-secret", APIToken: opcode + "-token"})
		}
		require.NoError(tdb.t, repo.Save(ctx, p))
		return p
	}

	h := &Hierarchy{}
	h.Admin = create("admin", partner.PartnerTypeSystemAdmin, nil, partner.FullCommission(), "")
	h.Head = create("head", partner.PartnerTypeHeadOffice, h.Admin, partner.FullCommission(), "HEAD")
	h.Main = create("main_one", partner.PartnerTypeMainOffice, h.Head, partner.NewCommissionRates(80, 80, 1), "MAIN")

	if headBalance.IsPositive() {
		h.Head.SetBalance(headBalance)
		require.NoError(tdb.t, repo.SaveWithLock(ctx, h.Head))
		reloaded, err := repo.FindByID(ctx, h.Head.ID)
		require.NoError(tdb.t, err)
		h.Head = reloaded
	}
	return h
}
