package sqlstore

import (
	"database/sql"
	"errors"

	"github.com/kwhite/reclaim/internal/models"
	"github.com/kwhite/reclaim/internal/store"
)

func (s *SQLStore) CreateUser(user *models.User) error {
	query := s.rebind("INSERT INTO users (username, password) VALUES (?, ?) RETURNING id")
	return s.db.QueryRow(query, user.Username, user.Password).Scan(&user.ID)
}

func (s *SQLStore) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, username, password FROM users WHERE username = ?")
	err := s.db.QueryRow(query, username).Scan(&user.ID, &user.Username, &user.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) GetUserByID(id int) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, username, password FROM users WHERE id = ?")
	err := s.db.QueryRow(query, id).Scan(&user.ID, &user.Username, &user.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) CreateItem(item *models.Item) error {
	if item.Status == "" {
		item.Status = "Lost"
	}
	query := s.rebind(`
		INSERT INTO items (title, description, location, status, posted_by)
		VALUES (?, ?, ?, ?, ?) RETURNING id, created_at
	`)
	return s.db.QueryRow(query, item.Title, item.Description, item.Location, item.Status, item.PostedBy).
		Scan(&item.ID, &item.CreatedAt)
}

func (s *SQLStore) GetItem(id int) (*models.Item, error) {
	var item models.Item
	query := s.rebind(`
		SELECT id, title, description, location, status, posted_by, created_at
		FROM items WHERE id = ?
	`)
	err := s.db.QueryRow(query, id).Scan(
		&item.ID, &item.Title, &item.Description, &item.Location,
		&item.Status, &item.PostedBy, &item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *SQLStore) ListItems(status string) ([]models.Item, error) {
	query := `
		SELECT id, title, description, location, status, posted_by, created_at
		FROM items
	`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(
			&item.ID, &item.Title, &item.Description, &item.Location,
			&item.Status, &item.PostedBy, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
