package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/kwhite/reclaim/internal/models"
	"github.com/kwhite/reclaim/internal/store/sqlstore"
)

func TestCreateAndFetchItem(t *testing.T) {
	s, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	owner := createUser(t, s, "owner")

	handler := &ItemHandler{Store: s}

	body, _ := json.Marshal(map[string]string{
		"title":    "Blue Backpack",
		"location": "Library",
	})
	rr := serve(handler.CreateItem, authedRequest("POST", "/items", body, owner.ID, nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("CreateItem returned %d: %s", rr.Code, rr.Body.String())
	}

	var created models.Item
	json.NewDecoder(rr.Body).Decode(&created)
	if created.ID == 0 || created.PostedBy != owner.ID || created.Status != "Lost" {
		t.Errorf("Unexpected created item: %+v", created)
	}

	vars := map[string]string{"id": strconv.Itoa(created.ID)}
	rr = serve(handler.GetItem, authedRequest("GET", "/items/1", nil, owner.ID, vars))
	if rr.Code != http.StatusOK {
		t.Fatalf("GetItem returned %d", rr.Code)
	}

	rr = serve(handler.GetItem, authedRequest("GET", "/items/9999", nil, owner.ID, map[string]string{"id": "9999"}))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown item, got %d", rr.Code)
	}
}

func TestCreateItemRequiresTitle(t *testing.T) {
	s, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	owner := createUser(t, s, "owner")

	handler := &ItemHandler{Store: s}

	body, _ := json.Marshal(map[string]string{"location": "Library"})
	rr := serve(handler.CreateItem, authedRequest("POST", "/items", body, owner.ID, nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing title, got %d", rr.Code)
	}
}
