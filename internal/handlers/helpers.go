package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vikasavnish/stockmemo/internal/datactx"
	"github.com/vikasavnish/stockmemo/internal/remote"
	"github.com/vikasavnish/stockmemo/internal/utils"
)

// Sessions resolves the data context of a signed-in user
type Sessions interface {
	Get(ctx context.Context, userID string) (*datactx.Context, error)
	Remove(userID string)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sessionFor returns the caller's session, or writes the error response and returns nil
func sessionFor(w http.ResponseWriter, r *http.Request, sessions Sessions) *datactx.Context {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil
	}
	session, err := sessions.Get(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return nil
	}
	return session
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, datactx.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, remote.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, datactx.ErrStockNotFound):
		return http.StatusNotFound
	case errors.Is(err, datactx.ErrSyncInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}
