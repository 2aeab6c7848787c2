package services

import (
	"errors"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/vikasavnish/stockmemo/internal/models"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameTaken is returned when registering an existing username
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidRegistration is returned when username or password is missing
	ErrInvalidRegistration = errors.New("username and password are required")
)

// AuthService defines the interface for authentication operations
type AuthService interface {
	Register(req models.RegisterRequest) (models.User, error)
	Authenticate(username, password string) (models.User, error)
	GenerateToken(user models.User) (string, error)
}

// authService implements the AuthService interface
type authService struct {
	db        *gorm.DB
	secretKey []byte
	ttl       time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(db *gorm.DB, secretKey []byte, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	return &authService{
		db:        db,
		secretKey: secretKey,
		ttl:       ttl,
	}
}

// Register creates a user with a bcrypt-hashed password
func (s *authService) Register(req models.RegisterRequest) (models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return models.User{}, ErrInvalidRegistration
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return models.User{}, err
	}
	if count > 0 {
		return models.User{}, ErrUsernameTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:             uuid.NewString(),
		Username:       username,
		HashedPassword: string(hashed),
		Email:          req.Email,
		CreatedAt:      time.Now(),
	}
	if err := s.db.Create(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Authenticate verifies user credentials and returns the user if valid
func (s *authService) Authenticate(username, password string) (models.User, error) {
	var user models.User
	result := s.db.Where("username = ?", username).First(&user)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if result.Error != nil {
		return models.User{}, result.Error
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// GenerateToken creates a new JWT token carrying the user id
func (s *authService) GenerateToken(user models.User) (string, error) {
	now := time.Now()
	claims := &models.Claims{
		UserID:   user.ID,
		Username: user.Username,
		StandardClaims: jwt.StandardClaims{
			Subject:   user.ID,
			ExpiresAt: now.Add(s.ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}
