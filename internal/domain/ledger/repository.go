package ledger

import (
	"context"
	"time"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EntryFilter narrows ledger listings
type EntryFilter struct {
	shared.Filter
	Subject *Party
	// ScopePartnerIDs restricts rows to these partners and the end users they
	// manage; nil means no restriction
	ScopePartnerIDs []uuid.UUID
	TransferID      *uuid.UUID
	Type            TransactionType
	From            *time.Time
	To              *time.Time
}

// EntryRepository is append-only: there is no update or delete
type EntryRepository interface {
	Create(ctx context.Context, e *Entry) error
	CreateBatch(ctx context.Context, entries []*Entry) error
	FindByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	FindByTransferID(ctx context.Context, transferID uuid.UUID) ([]Entry, error)
	FindAll(ctx context.Context, filter EntryFilter) ([]Entry, error)
	Count(ctx context.Context, filter EntryFilter) (int64, error)
}

// UnreconciledRepository persists settlements awaiting manual reconciliation
type UnreconciledRepository interface {
	Create(ctx context.Context, u *UnreconciledSettlement) error
	FindByID(ctx context.Context, id uuid.UUID) (*UnreconciledSettlement, error)
	FindByStatus(ctx context.Context, status ReconciliationStatus, filter shared.Filter) ([]UnreconciledSettlement, error)
	CountByStatus(ctx context.Context, status ReconciliationStatus) (int64, error)
	SaveWithLock(ctx context.Context, u *UnreconciledSettlement) error
}
