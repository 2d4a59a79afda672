package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupPartnerTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// every connection to :memory: is a fresh database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

type partnerTree struct {
	admin *partner.Partner
	head  *partner.Partner
	main1 *partner.Partner
	main2 *partner.Partner
	sub   *partner.Partner
}

func seedPartnerTree(t *testing.T, repo *GormPartnerRepository) *partnerTree {
	t.Helper()
	ctx := context.Background()

	newChild := func(username string, pt partner.PartnerType, parent *partner.Partner, rates partner.CommissionRates, balance int64) *partner.Partner {
		p, err := partner.NewPartner(username, "", pt, parent, rates)
		require.NoError(t, err)
		p.Balance = decimal.NewFromInt(balance)
		require.NoError(t, repo.Save(ctx, p))
		time.Sleep(time.Millisecond)
		return p
	}

	tree := &partnerTree{}
	tree.admin = newChild("gh_admin", partner.PartnerTypeSystemAdmin, nil, partner.FullCommission(), 0)
	tree.head = newChild("gh_head", partner.PartnerTypeHeadOffice, tree.admin, partner.FullCommission(), 1000)
	tree.main1 = newChild("gh_main_one", partner.PartnerTypeMainOffice, tree.head, partner.NewCommissionRates(80, 70, 5), 300)
	tree.main2 = newChild("gh_main_two", partner.PartnerTypeMainOffice, tree.head, partner.NewCommissionRates(80, 70, 5), 200)
	tree.sub = newChild("gh_sub", partner.PartnerTypeSubOffice, tree.main1, partner.NewCommissionRates(60, 50, 5), 50)
	return tree
}

func TestGormPartnerRepository_FindByID(t *testing.T) {
	db := setupPartnerTestDB(t)
	repo := NewGormPartnerRepository(db)
	tree := seedPartnerTree(t, repo)
	ctx := context.Background()

	t.Run("maps every column back to the domain", func(t *testing.T) {
		got, err := repo.FindByID(ctx, tree.main1.ID)
		require.NoError(t, err)

		assert.Equal(t, "gh_main_one", got.Username)
		assert.Equal(t, partner.PartnerTypeMainOffice, got.Type)
		assert.Equal(t, 3, got.Level)
		require.NotNil(t, got.ParentID)
		assert.Equal(t, tree.head.ID, *got.ParentID)
		assert.True(t, got.Balance.Equal(decimal.NewFromInt(300)))
		assert.True(t, got.Commission.Rolling.Equal(decimal.NewFromInt(80)))
		assert.Equal(t, partner.PartnerStatusActive, got.Status)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("username lookup ignores case", func(t *testing.T) {
		got, err := repo.FindByUsername(ctx, "GH_HEAD")
		require.NoError(t, err)
		assert.Equal(t, tree.head.ID, got.ID)

		exists, err := repo.ExistsByUsername(ctx, "gh_sub")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.ExistsByUsername(ctx, "gh_nobody")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestGormPartnerRepository_Hierarchy(t *testing.T) {
	db := setupPartnerTestDB(t)
	repo := NewGormPartnerRepository(db)
	tree := seedPartnerTree(t, repo)
	ctx := context.Background()

	t.Run("children of several parents in one query", func(t *testing.T) {
		children, err := repo.FindChildrenOf(ctx, []uuid.UUID{tree.head.ID, tree.main1.ID})
		require.NoError(t, err)

		names := make([]string, len(children))
		for i, c := range children {
			names[i] = c.Username
		}
		assert.Equal(t, []string{"gh_main_one", "gh_main_two", "gh_sub"}, names)
	})

	t.Run("no parents returns nothing", func(t *testing.T) {
		children, err := repo.FindChildrenOf(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, children)
	})

	t.Run("sum of main office balances", func(t *testing.T) {
		sum, err := repo.SumChildBalances(ctx, tree.head.ID, partner.PartnerTypeMainOffice)
		require.NoError(t, err)
		assert.True(t, sum.Equal(decimal.NewFromInt(500)), "got %s", sum)
	})

	t.Run("sum with no children is zero", func(t *testing.T) {
		sum, err := repo.SumChildBalances(ctx, tree.sub.ID, partner.PartnerTypeDistributor)
		require.NoError(t, err)
		assert.True(t, sum.IsZero())
	})

	t.Run("count children", func(t *testing.T) {
		n, err := repo.CountChildren(ctx, tree.head.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("find by type oldest first", func(t *testing.T) {
		mains, err := repo.FindByType(ctx, partner.PartnerTypeMainOffice)
		require.NoError(t, err)
		require.Len(t, mains, 2)
		assert.Equal(t, tree.main1.ID, mains[0].ID)
	})
}

func TestGormPartnerRepository_FindAll(t *testing.T) {
	db := setupPartnerTestDB(t)
	repo := NewGormPartnerRepository(db)
	tree := seedPartnerTree(t, repo)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter partner.PartnerFilter
		want   int
	}{
		{"no filter", partner.PartnerFilter{}, 5},
		{"by type", partner.PartnerFilter{Type: partner.PartnerTypeMainOffice}, 2},
		{"by parent", partner.PartnerFilter{ParentID: &tree.main1.ID}, 1},
		{"by ids", partner.PartnerFilter{IDs: []uuid.UUID{tree.head.ID, tree.sub.ID}}, 2},
		{"empty ids", partner.PartnerFilter{IDs: []uuid.UUID{}}, 0},
		{"search", partner.PartnerFilter{Filter: shared.Filter{Search: "MAIN"}}, 2},
		{"status", partner.PartnerFilter{Status: partner.PartnerStatusBlocked}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := repo.FindAll(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, rows, tt.want)

			count, err := repo.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.want), count)
		})
	}

	t.Run("pagination and ordering", func(t *testing.T) {
		filter := partner.PartnerFilter{Filter: shared.Filter{Page: 2, PageSize: 2, OrderBy: "username", OrderDir: "asc"}}
		rows, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "gh_main_one", rows[0].Username)
		assert.Equal(t, "gh_main_two", rows[1].Username)
	})
}

func TestGormPartnerRepository_SaveWithLock(t *testing.T) {
	db := setupPartnerTestDB(t)
	repo := NewGormPartnerRepository(db)
	tree := seedPartnerTree(t, repo)
	ctx := context.Background()

	first, err := repo.FindByID(ctx, tree.main2.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, tree.main2.ID)
	require.NoError(t, err)

	first.SetBalance(decimal.NewFromInt(150))
	require.NoError(t, repo.SaveWithLock(ctx, first))

	second.SetBalance(decimal.NewFromInt(999))
	err = repo.SaveWithLock(ctx, second)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	stored, err := repo.FindByID(ctx, tree.main2.ID)
	require.NoError(t, err)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, first.Version, stored.Version)
}

func TestGormPartnerRepository_UpdateLastLoginAndDelete(t *testing.T) {
	db := setupPartnerTestDB(t)
	repo := NewGormPartnerRepository(db)
	tree := seedPartnerTree(t, repo)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateLastLogin(ctx, tree.sub.ID, at))

	stored, err := repo.FindByID(ctx, tree.sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, stored.LastLoginAt.Equal(at))
	assert.Equal(t, tree.sub.Version, stored.Version)

	assert.ErrorIs(t, repo.UpdateLastLogin(ctx, uuid.New(), at), shared.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, tree.sub.ID))
	_, err = repo.FindByID(ctx, tree.sub.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, tree.sub.ID), shared.ErrNotFound)
}

func TestGormPartnerRepository_SaveWithLock_Postgres(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	repo := NewGormPartnerRepository(db.DB)

	p, err := partner.NewPartner("gh_admin", "", partner.PartnerTypeSystemAdmin, nil, partner.FullCommission())
	require.NoError(t, err)
	p.SetBalance(decimal.NewFromInt(10))

	t.Run("stale version is a concurrency conflict", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "partners" SET .* WHERE .*id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(context.Background(), p)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("current version updates one row", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "partners" SET .* WHERE .*id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SaveWithLock(context.Background(), p))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormEndUserRepository(t *testing.T) {
	db := setupPartnerTestDB(t)
	partners := NewGormPartnerRepository(db)
	repo := NewGormEndUserRepository(db)
	tree := seedPartnerTree(t, partners)
	ctx := context.Background()

	player, err := partner.NewEndUser("gh_player", "Player", tree.sub)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, player))
	other, err := partner.NewEndUser("gh_other", "", tree.main2)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, other))

	t.Run("find and count by referrer", func(t *testing.T) {
		got, err := repo.FindByUsername(ctx, "GH_PLAYER")
		require.NoError(t, err)
		assert.Equal(t, player.ID, got.ID)
		assert.Equal(t, tree.sub.ID, got.ReferrerID)

		n, err := repo.CountByReferrer(ctx, tree.sub.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("referrer scope", func(t *testing.T) {
		rows, err := repo.FindAll(ctx, partner.EndUserFilter{ReferrerIDs: []uuid.UUID{tree.main1.ID, tree.sub.ID}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "gh_player", rows[0].Username)

		count, err := repo.Count(ctx, partner.EndUserFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("optimistic lock", func(t *testing.T) {
		a, err := repo.FindByID(ctx, player.ID)
		require.NoError(t, err)
		b, err := repo.FindByID(ctx, player.ID)
		require.NoError(t, err)

		a.SetBalance(decimal.NewFromInt(25))
		require.NoError(t, repo.SaveWithLock(ctx, a))

		b.SetBalance(decimal.NewFromInt(1))
		assert.ErrorIs(t, repo.SaveWithLock(ctx, b), shared.ErrConcurrencyConflict)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
