package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	subject := PartnerParty(uuid.New())
	actor := uuid.New()

	valid := func() EntryParams {
		return EntryParams{
			Subject:       subject,
			Type:          TransactionTypeDeposit,
			Amount:        decimal.NewFromInt(200000),
			BalanceBefore: decimal.Zero,
			BalanceAfter:  decimal.NewFromInt(200000),
			ProcessedBy:   actor,
			Memo:          "  deposit from head  ",
		}
	}

	t.Run("credit row", func(t *testing.T) {
		e, err := NewEntry(valid())
		require.NoError(t, err)
		assert.True(t, e.IsCredit())
		assert.Equal(t, subject, e.Subject())
		assert.Equal(t, "deposit from head", e.Memo)
		assert.NotEqual(t, uuid.Nil, e.ID)
	})

	t.Run("debit row", func(t *testing.T) {
		p := valid()
		p.Amount = decimal.NewFromInt(-200000)
		p.BalanceBefore = decimal.NewFromInt(1000000)
		p.BalanceAfter = decimal.NewFromInt(800000)
		e, err := NewEntry(p)
		require.NoError(t, err)
		assert.True(t, e.IsDebit())
	})

	t.Run("imbalanced row rejected", func(t *testing.T) {
		p := valid()
		p.BalanceAfter = decimal.NewFromInt(199999)
		_, err := NewEntry(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match amount")
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		p := valid()
		p.Amount = decimal.Zero
		p.BalanceAfter = p.BalanceBefore
		_, err := NewEntry(p)
		assert.Error(t, err)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		p := valid()
		p.Type = TransactionType("bonus")
		_, err := NewEntry(p)
		assert.Error(t, err)
	})

	t.Run("missing subject rejected", func(t *testing.T) {
		p := valid()
		p.Subject = Party{Kind: SubjectUser}
		_, err := NewEntry(p)
		assert.Error(t, err)
	})
}

func TestParseSubjectKind(t *testing.T) {
	k, err := ParseSubjectKind("USER")
	require.NoError(t, err)
	assert.Equal(t, SubjectUser, k)

	_, err = ParseSubjectKind("agent")
	assert.Error(t, err)
}

func TestUnreconciledSettlementResolve(t *testing.T) {
	u := NewUnreconciledSettlement(uuid.New(), "deposit", uuid.New(),
		PartnerParty(uuid.New()), PartnerParty(uuid.New()), false,
		decimal.NewFromInt(10), nil, `{"RESULT":true}`, "db down", "memo")

	assert.True(t, u.IsPending())
	admin := uuid.New()
	require.NoError(t, u.Resolve(admin))
	assert.False(t, u.IsPending())
	assert.Equal(t, admin, *u.ResolvedBy)
	assert.Equal(t, 2, u.Version)
	assert.Error(t, u.Resolve(admin))
}
