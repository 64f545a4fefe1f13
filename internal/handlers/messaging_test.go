package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"

	"github.com/kwhite/reclaim/internal/auth"
	"github.com/kwhite/reclaim/internal/middleware"
	"github.com/kwhite/reclaim/internal/models"
	"github.com/kwhite/reclaim/internal/store/sqlstore"
)

type messagingEnv struct {
	store   *sqlstore.SQLStore
	handler *MessagingHandler
	alice   *models.User
	bob     *models.User
	carol   *models.User
	item    *models.Item
	conv    *models.Conversation
}

func newMessagingEnv(t *testing.T) *messagingEnv {
	t.Helper()
	s, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	env := &messagingEnv{store: s, handler: &MessagingHandler{Store: s}}
	env.alice = createUser(t, s, "alice")
	env.bob = createUser(t, s, "bob")
	env.carol = createUser(t, s, "carol")

	env.item = &models.Item{Title: "Blue Backpack", PostedBy: env.bob.ID}
	if err := s.CreateItem(env.item); err != nil {
		t.Fatal(err)
	}
	env.conv, err = s.GetOrCreateConversation(env.item.ID, env.alice.ID, env.bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func createUser(t *testing.T, s *sqlstore.SQLStore, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Password: "pass"}
	if err := s.CreateUser(user); err != nil {
		t.Fatal(err)
	}
	return user
}

// authedRequest builds a request carrying userID's signed identity cookie and
// the given mux path vars.
func authedRequest(method, target string, body []byte, userID int, vars map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.AddCookie(&http.Cookie{Name: "user_id", Value: auth.SignCookie(strconv.Itoa(userID))})
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

func serve(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	middleware.AuthMiddleware(handler).ServeHTTP(rr, req)
	return rr
}

func TestStartChatIsSingleton(t *testing.T) {
	env := newMessagingEnv(t)
	vars := map[string]string{"id": strconv.Itoa(env.item.ID)}

	rr := serve(env.handler.StartChat, authedRequest("POST", "/items/1/chat", nil, env.alice.ID, vars))
	if rr.Code != http.StatusOK {
		t.Fatalf("StartChat returned %d: %s", rr.Code, rr.Body.String())
	}
	var first map[string]int
	json.NewDecoder(rr.Body).Decode(&first)

	// Repeating the request resolves to the same thread
	rr = serve(env.handler.StartChat, authedRequest("POST", "/items/1/chat", nil, env.alice.ID, vars))
	var second map[string]int
	json.NewDecoder(rr.Body).Decode(&second)

	if first["conversation_id"] == 0 || first["conversation_id"] != second["conversation_id"] {
		t.Errorf("Expected one conversation, got %d and %d", first["conversation_id"], second["conversation_id"])
	}
	if first["conversation_id"] != env.conv.ID {
		t.Errorf("Expected the pre-existing conversation %d, got %d", env.conv.ID, first["conversation_id"])
	}
}

func TestStartChatRejectsOwner(t *testing.T) {
	env := newMessagingEnv(t)
	vars := map[string]string{"id": strconv.Itoa(env.item.ID)}

	rr := serve(env.handler.StartChat, authedRequest("POST", "/items/1/chat", nil, env.bob.ID, vars))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for the item owner, got %d", rr.Code)
	}
}

func TestStartChatUnknownItem(t *testing.T) {
	env := newMessagingEnv(t)
	vars := map[string]string{"id": "9999"}

	rr := serve(env.handler.StartChat, authedRequest("POST", "/items/9999/chat", nil, env.alice.ID, vars))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown item, got %d", rr.Code)
	}
}

func TestGetMessagesFetchImpliesRead(t *testing.T) {
	env := newMessagingEnv(t)
	if _, err := env.store.AppendMessage(env.conv.ID, env.alice.ID, "hello"); err != nil {
		t.Fatal(err)
	}
	vars := map[string]string{"id": strconv.Itoa(env.conv.ID)}

	// Bob was offline; he catches up from zero
	rr := serve(env.handler.GetMessages, authedRequest("GET", "/conversations/1/messages?after=0", nil, env.bob.ID, vars))
	if rr.Code != http.StatusOK {
		t.Fatalf("GetMessages returned %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Messages []models.MessageEvent `json:"messages"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(resp.Messages))
	}
	ev := resp.Messages[0]
	if ev.Message != "hello" || ev.SenderUsername != "alice" || ev.IsOwn {
		t.Errorf("Unexpected event: %+v", ev)
	}

	// Fetching acknowledged receipt
	unread, _ := env.store.UnreadCount(env.conv.ID, env.bob.ID)
	if unread != 0 {
		t.Errorf("Expected 0 unread after fetch, got %d", unread)
	}

	// A follow-up fetch with the last-seen id returns nothing new
	target := "/conversations/1/messages?after=" + strconv.Itoa(ev.MessageID)
	rr = serve(env.handler.GetMessages, authedRequest("GET", target, nil, env.bob.ID, vars))
	resp.Messages = nil
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Messages) != 0 {
		t.Errorf("Expected no messages after catch-up, got %d", len(resp.Messages))
	}
}

func TestGetMessagesForbiddenForNonParticipant(t *testing.T) {
	env := newMessagingEnv(t)
	env.store.AppendMessage(env.conv.ID, env.alice.ID, "hello")
	vars := map[string]string{"id": strconv.Itoa(env.conv.ID)}

	rr := serve(env.handler.GetMessages, authedRequest("GET", "/conversations/1/messages", nil, env.carol.ID, vars))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for non-participant, got %d", rr.Code)
	}

	// No data and no state change: bob's unread is untouched
	unread, _ := env.store.UnreadCount(env.conv.ID, env.bob.ID)
	if unread != 1 {
		t.Errorf("Expected unread state unchanged, got %d", unread)
	}
}

func TestSendMessage(t *testing.T) {
	env := newMessagingEnv(t)
	vars := map[string]string{"id": strconv.Itoa(env.conv.ID)}
	body, _ := json.Marshal(map[string]string{"message": "is this yours?"})

	rr := serve(env.handler.SendMessage, authedRequest("POST", "/conversations/1/messages", body, env.alice.ID, vars))
	if rr.Code != http.StatusCreated {
		t.Fatalf("SendMessage returned %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Message models.MessageEvent `json:"message"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Message.MessageID == 0 || !resp.Message.IsOwn || resp.Message.Message != "is this yours?" {
		t.Errorf("Unexpected send response: %+v", resp.Message)
	}

	unread, _ := env.store.UnreadCount(env.conv.ID, env.bob.ID)
	if unread != 1 {
		t.Errorf("Expected 1 unread for the recipient, got %d", unread)
	}
}

func TestSendMessageEmptyContent(t *testing.T) {
	env := newMessagingEnv(t)
	vars := map[string]string{"id": strconv.Itoa(env.conv.ID)}
	body, _ := json.Marshal(map[string]string{"message": "   "})

	rr := serve(env.handler.SendMessage, authedRequest("POST", "/conversations/1/messages", body, env.alice.ID, vars))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for empty content, got %d", rr.Code)
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["error"] == "" {
		t.Error("Expected a descriptive error message")
	}

	messages, _ := env.store.MessagesAfter(env.conv.ID, 0)
	if len(messages) != 0 {
		t.Errorf("Expected no message stored, got %d", len(messages))
	}
}

func TestSendMessageMalformedBody(t *testing.T) {
	env := newMessagingEnv(t)
	vars := map[string]string{"id": strconv.Itoa(env.conv.ID)}

	rr := serve(env.handler.SendMessage, authedRequest("POST", "/conversations/1/messages", []byte("{not json"), env.alice.ID, vars))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", rr.Code)
	}
}

func TestSendMessageForbidden(t *testing.T) {
	env := newMessagingEnv(t)
	vars := map[string]string{"id": strconv.Itoa(env.conv.ID)}
	body, _ := json.Marshal(map[string]string{"message": "let me in"})

	rr := serve(env.handler.SendMessage, authedRequest("POST", "/conversations/1/messages", body, env.carol.ID, vars))
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-participant, got %d", rr.Code)
	}
}

func TestInbox(t *testing.T) {
	env := newMessagingEnv(t)
	env.store.AppendMessage(env.conv.ID, env.alice.ID, "hello")

	rr := serve(env.handler.Inbox, authedRequest("GET", "/inbox", nil, env.bob.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Inbox returned %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
		TotalUnread   int                          `json:"total_unread"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Conversations) != 1 {
		t.Fatalf("Expected 1 conversation, got %d", len(resp.Conversations))
	}
	row := resp.Conversations[0]
	if row.OtherUser.Username != "alice" {
		t.Errorf("Expected other_user alice, got %q", row.OtherUser.Username)
	}
	if row.LastMessage == nil || row.LastMessage.Content != "hello" {
		t.Error("Expected last message 'hello'")
	}
	if row.UnreadCount != 1 || resp.TotalUnread != 1 {
		t.Errorf("Expected unread 1/1, got %d/%d", row.UnreadCount, resp.TotalUnread)
	}
}

func TestAnonymousCallerRejected(t *testing.T) {
	env := newMessagingEnv(t)

	req := httptest.NewRequest("GET", "/inbox", nil)
	rr := httptest.NewRecorder()
	middleware.AuthMiddleware(http.HandlerFunc(env.handler.Inbox)).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for anonymous caller, got %d", rr.Code)
	}
}
