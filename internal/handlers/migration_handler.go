package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/logger"
	"github.com/vikasavnish/stockmemo/internal/migration"
	"github.com/vikasavnish/stockmemo/internal/models"
	"github.com/vikasavnish/stockmemo/internal/monitoring"
)

// maxMigrationBytes bounds the offline dataset a client may post; inline
// images make it much larger than the records alone
const maxMigrationBytes = 64 << 20

// MigrationHandler imports a client's offline dataset into its account
type MigrationHandler struct {
	maxBody  int64
	sessions Sessions
	remote   migration.Remote
	metrics  *monitoring.Metrics
	log      *zap.SugaredLogger
}

func NewMigrationHandler(sessions Sessions, remote migration.Remote, metrics *monitoring.Metrics, log *zap.SugaredLogger) *MigrationHandler {
	return &MigrationHandler{
		maxBody:  maxMigrationBytes,
		sessions: sessions,
		remote:   remote,
		metrics:  metrics,
		log:      logger.OrNop(log),
	}
}

func (h *MigrationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/migration", h.Migrate).Methods("POST")
}

// Migrate takes the local dataset as the body and returns the migration result.
// A failed run answers 422 with the partial counts.
func (h *MigrationHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var d models.Dataset
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Dataset too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	svc := migration.NewService(migration.NewSnapshot(d), h.remote, h.metrics, h.log)
	res := svc.MigrateToRemote(r.Context(), session.UserID())
	session.Invalidate()

	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}
