package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/vikasavnish/stockmemo/internal/models"
)

// ErrUserNotFound is returned when no user has the requested id
var ErrUserNotFound = errors.New("user not found")

// UserService defines the interface for user-related operations
type UserService interface {
	GetUser(id string) (models.User, error)
	UpdateEmail(id, email string) (models.User, error)
}

// userService implements the UserService interface
type userService struct {
	db *gorm.DB
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB) UserService {
	return &userService{
		db: db,
	}
}

// GetUser returns a user by id
func (s *userService) GetUser(id string) (models.User, error) {
	var user models.User
	result := s.db.Where("id = ?", id).First(&user)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	return user, result.Error
}

// UpdateEmail changes the contact address of a user
func (s *userService) UpdateEmail(id, email string) (models.User, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return models.User{}, err
	}
	user.Email = email
	if err := s.db.Model(&user).Update("email", email).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}
