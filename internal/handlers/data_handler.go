package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vikasavnish/stockmemo/internal/datactx"
	"github.com/vikasavnish/stockmemo/internal/models"
	"github.com/vikasavnish/stockmemo/internal/storage"
	"github.com/vikasavnish/stockmemo/internal/utils"
)

// maxUploadBytes bounds multipart image uploads
const maxUploadBytes = 10 << 20

// DataResponse is the full dataset of a user plus the session flags
type DataResponse struct {
	models.Dataset
	State     datactx.State `json:"state"`
	IsLoading bool          `json:"isLoading"`
	IsSyncing bool          `json:"isSyncing"`
	Error     string        `json:"error,omitempty"`
}

// DataHandler exposes the data context of the signed-in user
type DataHandler struct {
	sessions Sessions
}

func NewDataHandler(sessions Sessions) *DataHandler {
	return &DataHandler{sessions: sessions}
}

// RegisterRoutes registers the dataset routes on an authenticated router
func (h *DataHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/data", h.GetData).Methods("GET")
	router.HandleFunc("/logout", h.Logout).Methods("POST")

	router.HandleFunc("/accounts", h.SaveAccount).Methods("POST")
	router.HandleFunc("/accounts/{id}", h.SaveAccount).Methods("PUT")
	router.HandleFunc("/accounts/{id}", h.DeleteAccount).Methods("DELETE")

	router.HandleFunc("/stocks", h.SaveStock).Methods("POST")
	router.HandleFunc("/stocks/add", h.AddStock).Methods("POST")
	router.HandleFunc("/stocks/{id}", h.SaveStock).Methods("PUT")
	router.HandleFunc("/stocks/{id}", h.DeleteStock).Methods("DELETE")

	router.HandleFunc("/memos", h.SaveMemo).Methods("POST")
	router.HandleFunc("/memos/{id}", h.SaveMemo).Methods("PUT")
	router.HandleFunc("/memos/{id}", h.DeleteMemo).Methods("DELETE")

	router.HandleFunc("/attachments", h.SaveAttachment).Methods("POST")
	router.HandleFunc("/attachments/{id}", h.DeleteAttachment).Methods("DELETE")

	router.HandleFunc("/uploads", h.UploadImage).Methods("POST")
}

// GetData returns the cached dataset, fetching it when stale
func (h *DataHandler) GetData(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	d, err := session.Data(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := DataResponse{
		Dataset:   d,
		State:     session.State(),
		IsLoading: session.IsLoading(),
		IsSyncing: session.IsSyncing(),
	}
	if err := session.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout ends the caller's session. The token stays valid; the next request
// starts a new session.
func (h *DataHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.sessions.Remove(userID)
	w.WriteHeader(http.StatusNoContent)
}

// decodeWithID decodes the body into v; a path id overrides the body's id
func decodeWithID(w http.ResponseWriter, r *http.Request, v interface{}, id *string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if pathID, ok := mux.Vars(r)["id"]; ok {
		*id = pathID
	}
	return true
}

func (h *DataHandler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	var a models.Account
	if !decodeWithID(w, r, &a, &a.ID) {
		return
	}
	if err := session.SaveAccount(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DataHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	if err := session.DeleteAccount(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DataHandler) SaveStock(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	var st models.Stock
	if !decodeWithID(w, r, &st, &st.ID) {
		return
	}
	if err := session.SaveStock(r.Context(), st); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddStock records a purchase, merging it into a matching stock
func (h *DataHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	var in datactx.StockInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if in.Name == "" && (in.Symbol == nil || *in.Symbol == "") {
		http.Error(w, "name or symbol is required", http.StatusBadRequest)
		return
	}
	st, err := session.AddStock(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *DataHandler) DeleteStock(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	if err := session.DeleteStock(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DataHandler) SaveMemo(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	var m models.Memo
	if !decodeWithID(w, r, &m, &m.ID) {
		return
	}
	if m.StockID == "" {
		http.Error(w, "stockId is required", http.StatusBadRequest)
		return
	}
	if err := session.SaveMemo(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DataHandler) DeleteMemo(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	if err := session.DeleteMemo(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DataHandler) SaveAttachment(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	var a models.Attachment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if a.MemoID == "" {
		http.Error(w, "memoId is required", http.StatusBadRequest)
		return
	}
	if err := session.SaveAttachment(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DataHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	if err := session.DeleteAttachment(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage stores the multipart "file" field and returns its public URL
func (h *DataHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Could not read upload", http.StatusBadRequest)
		return
	}
	url, err := session.UploadImage(r.Context(), storage.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}
