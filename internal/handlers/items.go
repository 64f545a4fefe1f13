package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kwhite/reclaim/internal/middleware"
	"github.com/kwhite/reclaim/internal/models"
	"github.com/kwhite/reclaim/internal/store"
)

// ItemHandler is the minimal catalog surface the messaging core negotiates
// over: create a listing, browse listings, look one up.
type ItemHandler struct {
	Store store.Store
}

type createItemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Status      string `json:"status"`
}

func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	item := &models.Item{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Status:      req.Status,
		PostedBy:    userID,
	}
	if err := h.Store.CreateItem(item); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}

func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	json.NewEncoder(w).Encode(items)
}

func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid item id", http.StatusBadRequest)
		return
	}

	item, err := h.Store.GetItem(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(item)
}
