package businesses

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/appointly-backend/pkg/db/models"
	"github.com/angelmondragon/appointly-backend/pkg/enums"
)

// ErrInviteUnavailable means the invite was already used, revoked or has expired.
var ErrInviteUnavailable = errors.New("invite unavailable")

// Repository persists businesses, delegated permissions and invites.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided database.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// Create inserts a business, assigning an id when missing.
func (r *Repository) Create(ctx context.Context, business *models.Business) error {
	if business.ID == uuid.Nil {
		business.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(business).Error
}

// FindByID returns nil, nil when the business does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Business, error) {
	var business models.Business
	if err := r.db.WithContext(ctx).First(&business, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &business, nil
}

// Delete removes a business that has no grants or invites yet.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Business{}, "id = ?", id).Error
}

// PermittedBusinessIDs lists businesses the user may act on through delegated grants.
func (r *Repository) PermittedBusinessIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := r.db.WithContext(ctx).
		Model(&models.BusinessPermission{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("business_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// HasPermission reports whether userID holds a grant on businessID.
func (r *Repository) HasPermission(ctx context.Context, businessID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BusinessPermission{}).
		Where("business_id = ? AND user_id = ?", businessID, userID).
		Count(&count).Error
	return count > 0, err
}

// HasGrantOnOwner reports whether userID holds a grant on any business of ownerID.
func (r *Repository) HasGrantOnOwner(ctx context.Context, userID, ownerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BusinessPermission{}).
		Joins("JOIN businesses ON businesses.id = business_permissions.business_id").
		Where("business_permissions.user_id = ? AND businesses.owner_id = ?", userID, ownerID).
		Count(&count).Error
	return count > 0, err
}

// CreateInvite stores a new pending invite. A code collision surfaces as a
// unique violation on business_invites.code.
func (r *Repository) CreateInvite(ctx context.Context, invite *models.BusinessInvite) error {
	if invite.ID == uuid.Nil {
		invite.ID = uuid.New()
	}
	if invite.Status == "" {
		invite.Status = enums.InviteStatusPending
	}
	return r.db.WithContext(ctx).Create(invite).Error
}

// FindInviteByCode returns nil, nil when no invite has the code.
func (r *Repository) FindInviteByCode(ctx context.Context, code string) (*models.BusinessInvite, error) {
	var invite models.BusinessInvite
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invite, nil
}

// AcceptInvite marks a pending invite accepted and grants the user permission
// on its business in one transaction. An existing grant is kept as is.
func (r *Repository) AcceptInvite(ctx context.Context, invite *models.BusinessInvite, userID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.BusinessInvite{}).
			Where("id = ? AND status = ? AND expires_at > ?", invite.ID, enums.InviteStatusPending, at).
			Updates(map[string]any{
				"status":              enums.InviteStatusAccepted,
				"accepted_by_user_id": userID,
				"accepted_at":         at,
				"updated_at":          at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInviteUnavailable
		}

		grantedBy := invite.CreatedByUserID
		perm := &models.BusinessPermission{
			ID:              uuid.New(),
			BusinessID:      invite.BusinessID,
			UserID:          userID,
			GrantedByUserID: &grantedBy,
			CreatedAt:       at,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "business_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(perm).Error
	})
}

// RevokeExpiredInvites flips pending invites that expired before at to
// revoked, at most limit per call, and reports how many changed.
func (r *Repository) RevokeExpiredInvites(ctx context.Context, at time.Time, limit int) (int64, error) {
	expired := r.db.Model(&models.BusinessInvite{}).
		Select("id").
		Where("status = ? AND expires_at <= ?", enums.InviteStatusPending, at).
		Order("expires_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).
		Model(&models.BusinessInvite{}).
		Where("id IN (?)", expired).
		Updates(map[string]any{
			"status":     enums.InviteStatusRevoked,
			"updated_at": at,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
