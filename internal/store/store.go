package store

import (
	"errors"

	"github.com/kwhite/reclaim/internal/models"
)

var (
	// ErrNotFound is returned when a user, item or conversation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSender is returned when the sender of a message is not one of
	// the conversation's two participants.
	ErrInvalidSender = errors.New("sender is not a participant")

	// ErrEmptyContent is returned when message content is empty after trimming.
	ErrEmptyContent = errors.New("empty message content")
)

type Store interface {
	// User operations
	CreateUser(user *models.User) error
	GetUserByUsername(username string) (*models.User, error)
	GetUserByID(id int) (*models.User, error)

	// Item catalog operations
	CreateItem(item *models.Item) error
	GetItem(id int) (*models.Item, error)
	ListItems(status string) ([]models.Item, error)

	// Conversation operations
	//
	// GetOrCreateConversation resolves the singleton thread for (item,
	// unordered user pair), creating it with requesterID in the first slot
	// when absent. Safe under concurrent first-contact races.
	GetOrCreateConversation(itemID, requesterID, otherID int) (*models.Conversation, error)
	GetConversation(id int) (*models.Conversation, error)

	// AppendMessage persists a new message and bumps the conversation's
	// last-activity timestamp in the same transaction.
	AppendMessage(conversationID, senderID int, content string) (*models.Message, error)

	// MessagesAfter returns messages with id > afterID in ascending id order;
	// afterID 0 returns the full history.
	MessagesAfter(conversationID, afterID int) ([]models.Message, error)

	// MarkRead flips the read flag on every unread message in the
	// conversation not sent by readerID and reports how many were flipped.
	// Idempotent.
	MarkRead(conversationID, readerID int) (int, error)

	// UnreadCount is the single unread derivation: messages where
	// sender != userID and is_read is false. Every view routes through it.
	UnreadCount(conversationID, userID int) (int, error)

	// ListConversations builds the inbox for userID, ordered by
	// last-activity descending.
	ListConversations(userID int) ([]models.ConversationSummary, error)
}
