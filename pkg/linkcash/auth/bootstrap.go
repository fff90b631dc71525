package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnsureAdmin creates an admin account with the given credentials when no
// admin exists yet. Empty email disables bootstrapping.
func EnsureAdmin(ctx context.Context, db *gorm.DB, email, password string, logger *zap.Logger) error {
	if email == "" {
		return nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}

	admin := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "Admin",
		PasswordHash: hashedPassword,
		SystemRole:   models.SystemRoleAdmin,
	}
	if err := models.Validate(&admin); err != nil {
		return err
	}
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		return err
	}

	logger.Info("created bootstrap admin user", zap.String("email", email))
	return nil
}
