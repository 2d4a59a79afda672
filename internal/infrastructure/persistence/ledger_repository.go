package persistence

import (
	"context"
	"errors"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormEntryRepository implements the append-only EntryRepository using GORM
type GormEntryRepository struct {
	db *gorm.DB
}

// NewGormEntryRepository creates a new GormEntryRepository
func NewGormEntryRepository(db *gorm.DB) *GormEntryRepository {
	return &GormEntryRepository{db: db}
}

// Create appends one ledger row
func (r *GormEntryRepository) Create(ctx context.Context, e *ledger.Entry) error {
	return r.db.WithContext(ctx).Create(models.LedgerEntryModelFromDomain(e)).Error
}

// CreateBatch appends several ledger rows in one statement
func (r *GormEntryRepository) CreateBatch(ctx context.Context, entries []*ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.LedgerEntryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.LedgerEntryModelFromDomain(e)
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// FindByID finds a ledger row by ID
func (r *GormEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	var model models.LedgerEntryModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTransferID returns every row written by one transfer, oldest first
func (r *GormEntryRepository) FindByTransferID(ctx context.Context, transferID uuid.UUID) ([]ledger.Entry, error) {
	var rows []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("transfer_id = ?", transferID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return entriesToDomain(rows), nil
}

// FindAll lists ledger rows matching the filter, newest first by default
func (r *GormEntryRepository) FindAll(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	var rows []models.LedgerEntryModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.LedgerEntryModel{}), filter).
		Order(orderClause(filter.OrderBy, filter.OrderDir, LedgerSortFields, "created_at"))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return entriesToDomain(rows), nil
}

// Count counts ledger rows matching the filter
func (r *GormEntryRepository) Count(ctx context.Context, filter ledger.EntryFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.LedgerEntryModel{}), filter).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormEntryRepository) applyFilter(query *gorm.DB, filter ledger.EntryFilter) *gorm.DB {
	if filter.Subject != nil {
		query = query.Where("subject_kind = ? AND subject_id = ?", filter.Subject.Kind, filter.Subject.ID)
	}
	if filter.ScopePartnerIDs != nil {
		managed := r.db.Model(&models.EndUserModel{}).Select("id").Where("referrer_id IN ?", filter.ScopePartnerIDs)
		query = query.Where(
			r.db.Where("subject_kind = ? AND subject_id IN ?", ledger.SubjectPartner, filter.ScopePartnerIDs).
				Or("subject_kind = ? AND subject_id IN (?)", ledger.SubjectUser, managed),
		)
	}
	if filter.TransferID != nil {
		query = query.Where("transfer_id = ?", *filter.TransferID)
	}
	if filter.Type != "" {
		query = query.Where("transaction_type = ?", filter.Type)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	return query
}

func entriesToDomain(rows []models.LedgerEntryModel) []ledger.Entry {
	out := make([]ledger.Entry, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

var _ ledger.EntryRepository = (*GormEntryRepository)(nil)

// GormUnreconciledRepository implements UnreconciledRepository using GORM
type GormUnreconciledRepository struct {
	db *gorm.DB
}

// NewGormUnreconciledRepository creates a new GormUnreconciledRepository
func NewGormUnreconciledRepository(db *gorm.DB) *GormUnreconciledRepository {
	return &GormUnreconciledRepository{db: db}
}

// Create stores a new unreconciled settlement
func (r *GormUnreconciledRepository) Create(ctx context.Context, u *ledger.UnreconciledSettlement) error {
	return r.db.WithContext(ctx).Create(models.UnreconciledSettlementModelFromDomain(u)).Error
}

// FindByID finds an unreconciled settlement by ID
func (r *GormUnreconciledRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.UnreconciledSettlement, error) {
	var model models.UnreconciledSettlementModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByStatus lists settlements in one reconciliation status, oldest first by default
func (r *GormUnreconciledRepository) FindByStatus(ctx context.Context, status ledger.ReconciliationStatus, filter shared.Filter) ([]ledger.UnreconciledSettlement, error) {
	var rows []models.UnreconciledSettlementModel
	dir := filter.OrderDir
	if dir == "" {
		dir = "asc"
	}
	query := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order(orderClause(filter.OrderBy, dir, UnreconciledSortFields, "created_at"))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.UnreconciledSettlement, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// CountByStatus counts settlements in one reconciliation status
func (r *GormUnreconciledRepository) CountByStatus(ctx context.Context, status ledger.ReconciliationStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.UnreconciledSettlementModel{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SaveWithLock updates the reconciliation state only if the stored version is u.Version-1
func (r *GormUnreconciledRepository) SaveWithLock(ctx context.Context, u *ledger.UnreconciledSettlement) error {
	result := r.db.WithContext(ctx).
		Model(&models.UnreconciledSettlementModel{}).
		Where("id = ? AND version = ?", u.ID, u.Version-1).
		Updates(map[string]interface{}{
			"status":      u.Status,
			"resolved_by": u.ResolvedBy,
			"resolved_at": u.ResolvedAt,
			"version":     u.Version,
			"updated_at":  u.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

var _ ledger.UnreconciledRepository = (*GormUnreconciledRepository)(nil)
