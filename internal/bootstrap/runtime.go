// Package bootstrap performs runtime initialization shared by the cmd
// entrypoints: database, migrations, Redis and optional development seeding.
package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	"sophia/internal/cache"
	"sophia/internal/config"
	"sophia/internal/database"
	"sophia/internal/models"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// Migrate runs GORM auto-migration on startup.
	Migrate bool
}

// InitRuntime connects to the database and Redis, optionally migrating the
// schema and bootstrapping a development superuser.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if opts.Migrate {
		if err := database.Migrate(db); err != nil {
			return nil, nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	// May leave a nil client when Redis is unreachable; the server degrades
	// to inbox-only notifications.
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := ensureDevSuperuser(cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development superuser: %w", err)
	}

	return db, r, nil
}

// ensureDevSuperuser creates or refreshes the local superuser account used
// during development. The account lives in the shared users table so the dev
// auth stack can issue tokens for it.
func ensureDevSuperuser(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	email := strings.TrimSpace(strings.ToLower(cfg.DevRootEmail))
	if email == "" {
		email = "root@sophia.local"
	}
	if cfg.DevRootPassword == "" {
		return errors.New("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.DevRootPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash root password: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var root models.User
		findErr := tx.First(&root, "email = ?", email).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			root = models.User{
				Username:     "sophia_root",
				Name:         "Sophia Root",
				Email:        email,
				Role:         models.RoleSuperuser,
				Active:       true,
				PasswordHash: string(hashed),
			}
			return tx.Create(&root).Error
		case findErr != nil:
			return findErr
		default:
			return tx.Model(&root).Updates(map[string]any{
				"role":          models.RoleSuperuser,
				"active":        true,
				"password_hash": string(hashed),
			}).Error
		}
	})
}
