// Package directory is the read-only client for the user/tenant directory.
// The messaging core never mutates directory data; accounts, roles and school
// memberships are managed elsewhere.
package directory

import (
	"context"
	"errors"

	"sophia/internal/authz"
	"sophia/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Directory resolves identities and tenant facts for authorization.
type Directory interface {
	// ResolveActor returns the caller's role and tenant memberships, or an
	// UNAUTHORIZED error when the user is unknown or deactivated.
	ResolveActor(ctx context.Context, userID uuid.UUID) (authz.Actor, error)
	// GetUser returns a user record by ID.
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	// UsersExist reports whether every given user ID resolves to an active user.
	UsersExist(ctx context.Context, userIDs []uuid.UUID) (bool, error)
}

type gormDirectory struct {
	db *gorm.DB
}

// NewDirectory returns a Directory backed by the shared database.
func NewDirectory(db *gorm.DB) Directory {
	return &gormDirectory{db: db}
}

func (d *gormDirectory) ResolveActor(ctx context.Context, userID uuid.UUID) (authz.Actor, error) {
	var user models.User
	err := d.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return authz.Actor{}, models.NewUnauthorizedError("Unknown user")
		}
		return authz.Actor{}, err
	}
	if !user.Active {
		return authz.Actor{}, models.NewUnauthorizedError("User is deactivated")
	}

	actor := authz.Actor{UserID: user.ID, Role: user.Role}

	if err := d.db.WithContext(ctx).
		Model(&models.SchoolMembership{}).
		Where("user_id = ?", userID).
		Pluck("school_id", &actor.SchoolIDs).Error; err != nil {
		return authz.Actor{}, err
	}

	if user.Role == models.RoleCoordinator {
		if err := d.db.WithContext(ctx).
			Model(&models.SchoolClass{}).
			Where("coordinator_id = ?", userID).
			Pluck("id", &actor.CoordinatedClassIDs).Error; err != nil {
			return authz.Actor{}, err
		}
	}

	return actor, nil
}

func (d *gormDirectory) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", userID)
		}
		return nil, err
	}
	return &user, nil
}

func (d *gormDirectory) UsersExist(ctx context.Context, userIDs []uuid.UUID) (bool, error) {
	if len(userIDs) == 0 {
		return true, nil
	}
	var count int64
	err := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id IN ? AND active = ?", userIDs, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == int64(len(userIDs)), nil
}
