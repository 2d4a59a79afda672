package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormPartnerRepository implements PartnerRepository using GORM
type GormPartnerRepository struct {
	db *gorm.DB
}

// NewGormPartnerRepository creates a new GormPartnerRepository
func NewGormPartnerRepository(db *gorm.DB) *GormPartnerRepository {
	return &GormPartnerRepository{db: db}
}

// FindByID finds a partner by ID
func (r *GormPartnerRepository) FindByID(ctx context.Context, id uuid.UUID) (*partner.Partner, error) {
	var model models.PartnerModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByUsername finds a partner by username, case-insensitively
func (r *GormPartnerRepository) FindByUsername(ctx context.Context, username string) (*partner.Partner, error) {
	var model models.PartnerModel
	if err := r.db.WithContext(ctx).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindChildrenOf returns the direct children of all given parents
func (r *GormPartnerRepository) FindChildrenOf(ctx context.Context, parentIDs []uuid.UUID) ([]partner.Partner, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var rows []models.PartnerModel
	if err := r.db.WithContext(ctx).
		Where("parent_id IN ?", parentIDs).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return partnersToDomain(rows), nil
}

// FindByType returns every partner of a tier, oldest first
func (r *GormPartnerRepository) FindByType(ctx context.Context, partnerType partner.PartnerType) ([]partner.Partner, error) {
	var rows []models.PartnerModel
	if err := r.db.WithContext(ctx).
		Where("type = ?", partnerType).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return partnersToDomain(rows), nil
}

// FindAll lists partners matching the filter
func (r *GormPartnerRepository) FindAll(ctx context.Context, filter partner.PartnerFilter) ([]partner.Partner, error) {
	var rows []models.PartnerModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.PartnerModel{}), filter).
		Order(orderClause(filter.OrderBy, filter.OrderDir, PartnerSortFields, "created_at"))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return partnersToDomain(rows), nil
}

// Count counts partners matching the filter
func (r *GormPartnerRepository) Count(ctx context.Context, filter partner.PartnerFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.PartnerModel{}), filter).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormPartnerRepository) applyFilter(query *gorm.DB, filter partner.PartnerFilter) *gorm.DB {
	if filter.IDs != nil {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ParentID != nil {
		query = query.Where("parent_id = ?", *filter.ParentID)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(nickname) LIKE ?", like, like)
	}
	return query
}

// SumChildBalances sums the balances of parentID's direct children of one tier
func (r *GormPartnerRepository) SumChildBalances(ctx context.Context, parentID uuid.UUID, childType partner.PartnerType) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	row := r.db.WithContext(ctx).
		Model(&models.PartnerModel{}).
		Select("SUM(balance)").
		Where("parent_id = ? AND type = ?", parentID, childType).
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// CountChildren counts the direct children of a partner
func (r *GormPartnerRepository) CountChildren(ctx context.Context, parentID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PartnerModel{}).
		Where("parent_id = ?", parentID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ExistsByUsername checks if a partner username is taken
func (r *GormPartnerRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PartnerModel{}).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or fully updates a partner
func (r *GormPartnerRepository) Save(ctx context.Context, p *partner.Partner) error {
	return r.db.WithContext(ctx).Save(models.PartnerModelFromDomain(p)).Error
}

// SaveWithLock updates a partner only if the stored version is p.Version-1
func (r *GormPartnerRepository) SaveWithLock(ctx context.Context, p *partner.Partner) error {
	result := r.db.WithContext(ctx).
		Model(&models.PartnerModel{}).
		Where("id = ? AND version = ?", p.ID, p.Version-1).
		Updates(map[string]interface{}{
			"nickname":           p.Nickname,
			"balance":            p.Balance,
			"commission_rolling": p.Commission.Rolling,
			"commission_losing":  p.Commission.Losing,
			"withdrawal_fee":     p.Commission.WithdrawalFee,
			"opcode":             p.Credentials.Opcode,
			"secret_key":         p.Credentials.SecretKey,
			"api_token":          p.Credentials.APIToken,
			"status":             p.Status,
			"password_hash":      p.PasswordHash,
			"version":            p.Version,
			"updated_at":         p.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// UpdateLastLogin stamps the login time without touching balance or version
func (r *GormPartnerRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.PartnerModel{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete deletes a partner by ID
func (r *GormPartnerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.PartnerModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func partnersToDomain(rows []models.PartnerModel) []partner.Partner {
	out := make([]partner.Partner, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

var _ partner.PartnerRepository = (*GormPartnerRepository)(nil)

// GormEndUserRepository implements EndUserRepository using GORM
type GormEndUserRepository struct {
	db *gorm.DB
}

// NewGormEndUserRepository creates a new GormEndUserRepository
func NewGormEndUserRepository(db *gorm.DB) *GormEndUserRepository {
	return &GormEndUserRepository{db: db}
}

// FindByID finds an end user by ID
func (r *GormEndUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*partner.EndUser, error) {
	var model models.EndUserModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByUsername finds an end user by username, case-insensitively
func (r *GormEndUserRepository) FindByUsername(ctx context.Context, username string) (*partner.EndUser, error) {
	var model models.EndUserModel
	if err := r.db.WithContext(ctx).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists end users matching the filter
func (r *GormEndUserRepository) FindAll(ctx context.Context, filter partner.EndUserFilter) ([]partner.EndUser, error) {
	var rows []models.EndUserModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.EndUserModel{}), filter).
		Order(orderClause(filter.OrderBy, filter.OrderDir, EndUserSortFields, "created_at"))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]partner.EndUser, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Count counts end users matching the filter
func (r *GormEndUserRepository) Count(ctx context.Context, filter partner.EndUserFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.EndUserModel{}), filter).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormEndUserRepository) applyFilter(query *gorm.DB, filter partner.EndUserFilter) *gorm.DB {
	if filter.ReferrerIDs != nil {
		query = query.Where("referrer_id IN ?", filter.ReferrerIDs)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(nickname) LIKE ?", like, like)
	}
	return query
}

// CountByReferrer counts the end users a partner manages
func (r *GormEndUserRepository) CountByReferrer(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.EndUserModel{}).
		Where("referrer_id = ?", referrerID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ExistsByUsername checks if an end user username is taken
func (r *GormEndUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.EndUserModel{}).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or fully updates an end user
func (r *GormEndUserRepository) Save(ctx context.Context, u *partner.EndUser) error {
	return r.db.WithContext(ctx).Save(models.EndUserModelFromDomain(u)).Error
}

// SaveWithLock updates an end user only if the stored version is u.Version-1
func (r *GormEndUserRepository) SaveWithLock(ctx context.Context, u *partner.EndUser) error {
	result := r.db.WithContext(ctx).
		Model(&models.EndUserModel{}).
		Where("id = ? AND version = ?", u.ID, u.Version-1).
		Updates(map[string]interface{}{
			"nickname":   u.Nickname,
			"balance":    u.Balance,
			"status":     u.Status,
			"version":    u.Version,
			"updated_at": u.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

var _ partner.EndUserRepository = (*GormEndUserRepository)(nil)
