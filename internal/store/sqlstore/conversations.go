package sqlstore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/kwhite/reclaim/internal/models"
	"github.com/kwhite/reclaim/internal/store"
)

// GetOrCreateConversation resolves the singleton thread for the item and the
// unordered participant pair. The unique index on (item_id, pair_lo, pair_hi)
// is the serialization point: a concurrent first-contact race leaves exactly
// one row, and the loser's insert is a no-op followed by a re-select.
func (s *SQLStore) GetOrCreateConversation(itemID, requesterID, otherID int) (*models.Conversation, error) {
	lo, hi := requesterID, otherID
	if lo > hi {
		lo, hi = hi, lo
	}

	conv, err := s.conversationByIdentity(itemID, lo, hi)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	query := s.rebind(`
		INSERT INTO conversations (item_id, participant1_id, participant2_id, pair_lo, pair_hi)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (item_id, pair_lo, pair_hi) DO NOTHING
	`)
	if _, err := s.db.Exec(query, itemID, requesterID, otherID, lo, hi); err != nil {
		return nil, err
	}

	return s.conversationByIdentity(itemID, lo, hi)
}

func (s *SQLStore) conversationByIdentity(itemID, lo, hi int) (*models.Conversation, error) {
	query := s.rebind(`
		SELECT id, item_id, participant1_id, participant2_id, created_at, updated_at
		FROM conversations
		WHERE item_id = ? AND pair_lo = ? AND pair_hi = ?
	`)
	return s.scanConversation(s.db.QueryRow(query, itemID, lo, hi))
}

func (s *SQLStore) GetConversation(id int) (*models.Conversation, error) {
	query := s.rebind(`
		SELECT id, item_id, participant1_id, participant2_id, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`)
	return s.scanConversation(s.db.QueryRow(query, id))
}

func (s *SQLStore) scanConversation(row *sql.Row) (*models.Conversation, error) {
	var conv models.Conversation
	err := row.Scan(
		&conv.ID, &conv.ItemID, &conv.Participant1, &conv.Participant2,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendMessage validates the sender, persists the message and bumps the
// conversation's last-activity timestamp. Insert and bump share a transaction
// so the inbox never sorts a conversation ahead of a message that failed.
func (s *SQLStore) AppendMessage(conversationID, senderID int, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, store.ErrEmptyContent
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var p1, p2 int
	query := s.rebind("SELECT participant1_id, participant2_id FROM conversations WHERE id = ?")
	err = tx.QueryRow(query, conversationID).Scan(&p1, &p2)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if senderID != p1 && senderID != p2 {
		return nil, store.ErrInvalidSender
	}

	msg := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	query = s.rebind(`
		INSERT INTO messages (conversation_id, sender_id, content)
		VALUES (?, ?, ?) RETURNING id, created_at
	`)
	if err := tx.QueryRow(query, conversationID, senderID, content).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, err
	}

	query = s.rebind("UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?")
	if _, err := tx.Exec(query, conversationID); err != nil {
		return nil, err
	}

	query = s.rebind("SELECT username FROM users WHERE id = ?")
	if err := tx.QueryRow(query, senderID).Scan(&msg.SenderUsername); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *SQLStore) MessagesAfter(conversationID, afterID int) ([]models.Message, error) {
	query := s.rebind(`
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.created_at, m.is_read
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = ? AND m.id > ?
		ORDER BY m.id ASC
	`)
	rows, err := s.db.Query(query, conversationID, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.SenderUsername,
			&m.Content, &m.CreatedAt, &m.IsRead,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkRead flips every unread message not sent by the reader. The read flag
// only ever transitions false to true, and only by the non-sender.
func (s *SQLStore) MarkRead(conversationID, readerID int) (int, error) {
	query := s.rebind(`
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = FALSE
	`)
	result, err := s.db.Exec(query, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	flipped, err := result.RowsAffected()
	return int(flipped), err
}

// UnreadCount is the single unread derivation shared by the inbox and the
// chat room: messages from the other participant that are still unread.
func (s *SQLStore) UnreadCount(conversationID, userID int) (int, error) {
	var count int
	query := s.rebind(`
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = FALSE
	`)
	err := s.db.QueryRow(query, conversationID, userID).Scan(&count)
	return count, err
}

func (s *SQLStore) ListConversations(userID int) ([]models.ConversationSummary, error) {
	query := s.rebind(`
		SELECT id, item_id, participant1_id, participant2_id, created_at, updated_at
		FROM conversations
		WHERE participant1_id = ? OR participant2_id = ?
		ORDER BY updated_at DESC, id DESC
	`)
	rows, err := s.db.Query(query, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(
			&conv.ID, &conv.ItemID, &conv.Participant1, &conv.Participant2,
			&conv.CreatedAt, &conv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var summaries []models.ConversationSummary
	for _, conv := range convs {
		other, err := s.GetUserByID(conv.OtherParticipant(userID))
		if err != nil {
			return nil, err
		}
		last, err := s.lastMessage(conv.ID)
		if err != nil {
			return nil, err
		}
		unread, err := s.UnreadCount(conv.ID, userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.ConversationSummary{
			Conversation: conv,
			OtherUser:    *other,
			LastMessage:  last,
			UnreadCount:  unread,
		})
	}
	return summaries, nil
}

func (s *SQLStore) lastMessage(conversationID int) (*models.Message, error) {
	var m models.Message
	query := s.rebind(`
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.created_at, m.is_read
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = ?
		ORDER BY m.id DESC
		LIMIT 1
	`)
	err := s.db.QueryRow(query, conversationID).Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.SenderUsername,
		&m.Content, &m.CreatedAt, &m.IsRead,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
