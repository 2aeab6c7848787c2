package models

import (
	"time"

	"github.com/dgrijalva/jwt-go"
)

type User struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Username       string    `gorm:"unique" json:"username"`
	HashedPassword string    `json:"-" gorm:"column:hashed_password"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"createdAt" gorm:"column:created_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// Claims for JWT authentication
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"username"`
	jwt.StandardClaims
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}
