package sqlstore

import (
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kwhite/reclaim/internal/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLStore, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Password: "pass"}
	if err := s.CreateUser(user); err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

func seedItem(t *testing.T, s *SQLStore, title string, postedBy int) *models.Item {
	t.Helper()
	item := &models.Item{Title: title, Location: "Library", PostedBy: postedBy}
	if err := s.CreateItem(item); err != nil {
		t.Fatalf("Failed to create item %s: %v", title, err)
	}
	return item
}
