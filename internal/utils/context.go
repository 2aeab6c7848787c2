package utils

import (
	"context"
	"errors"
)

// Key type for context values
type contextKey string

// Constant for user ID context key
const userIDKey contextKey = "userID"

// ErrNoUser is returned when the context carries no authenticated user
var ErrNoUser = errors.New("user ID not found in context")

// GetUserIDFromContext extracts the user ID from the context
func GetUserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUser
	}
	return userID, nil
}

// SetUserIDToContext adds the user ID to the context
func SetUserIDToContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
