package database

import (
	"os"
	"time"

	"github.com/washpoint/carwash/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultAdmin defines the bootstrap admin user credentials
type DefaultAdmin struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Phone     string
}

// GetDefaultAdmin returns the bootstrap admin user. Email and password can
// be overridden from the environment for non-dev deployments.
func GetDefaultAdmin() DefaultAdmin {
	admin := DefaultAdmin{
		FirstName: "Admin",
		LastName:  "Carwash",
		Email:     "admin@carwash.local",
		Password:  "Admin@123", // Change this in production!
		Phone:     "+14155550100",
	}
	if email := os.Getenv("SEED_ADMIN_EMAIL"); email != "" {
		admin.Email = email
	}
	if password := os.Getenv("SEED_ADMIN_PASSWORD"); password != "" {
		admin.Password = password
	}
	return admin
}

// Seed creates initial data for the database
func Seed(db *gorm.DB) error {
	return SeedUsers(db)
}

// SeedUsers creates the bootstrap admin user if not exists. The account is
// created pre-verified and active so the platform is operable immediately.
func SeedUsers(db *gorm.DB) error {
	admin := GetDefaultAdmin()

	var existingUser model.User
	result := db.Where("email = ?", admin.Email).First(&existingUser)

	if result.Error == nil {
		// Admin already exists, skip seeding
		return nil
	}

	if result.Error != gorm.ErrRecordNotFound {
		return result.Error
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user := model.User{
		FirstName:       admin.FirstName,
		LastName:        admin.LastName,
		Email:           admin.Email,
		PasswordHash:    string(hashedPassword),
		Phone:           admin.Phone,
		Role:            model.RoleAdmin,
		IsActive:        true,
		EmailVerified:   true,
		EmailVerifiedAt: &now,
	}

	return db.Create(&user).Error
}
