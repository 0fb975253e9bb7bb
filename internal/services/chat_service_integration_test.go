package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jophinbabu/Chatty/internal/models"
	"github.com/jophinbabu/Chatty/internal/repository"
	"github.com/jophinbabu/Chatty/pkg/utils"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

const integrationSecret = "integration-message-secret"

func TestChatServiceDirectConversationIsReused(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service, hub := newIntegrationChatService(pool)

	alice := createChatTestUser(t, ctx, pool, "alice")
	bob := createChatTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupChatTestUsers(t, ctx, pool, alice, bob) })

	first, err := service.SendMessage(ctx, alice, bob, SendMessageInput{Text: encryptForTest(t, "hello")})
	if err != nil {
		t.Fatalf("first SendMessage: %v", err)
	}
	second, err := service.SendMessage(ctx, alice, bob, SendMessageInput{Text: encryptForTest(t, "again")})
	if err != nil {
		t.Fatalf("second SendMessage: %v", err)
	}
	reply, err := service.SendMessage(ctx, bob, alice, SendMessageInput{Text: encryptForTest(t, "hi back")})
	if err != nil {
		t.Fatalf("reply SendMessage: %v", err)
	}

	if first.ConversationID != second.ConversationID || first.ConversationID != reply.ConversationID {
		t.Fatalf("expected one shared conversation, got %d, %d and %d",
			first.ConversationID, second.ConversationID, reply.ConversationID)
	}

	summaries, err := service.ListConversations(ctx, alice)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected a single conversation for alice, got %d", len(summaries))
	}
	if summaries[0].UnreadCount != 1 {
		t.Fatalf("expected one unread message from bob, got %d", summaries[0].UnreadCount)
	}
	if summaries[0].LastMessage == nil || summaries[0].LastMessage.Text != "hi back" {
		t.Fatalf("expected plain last message preview, got %+v", summaries[0].LastMessage)
	}

	if fanouts := len(hub.fanouts); fanouts != 3 {
		t.Fatalf("expected one fanout per send, got %d", fanouts)
	}
}

func TestChatServiceHistoryIsAscending(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service, _ := newIntegrationChatService(pool)

	alice := createChatTestUser(t, ctx, pool, "alice")
	bob := createChatTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupChatTestUsers(t, ctx, pool, alice, bob) })

	for _, text := range []string{"one", "two", "three"} {
		if _, err := service.SendMessage(ctx, alice, bob, SendMessageInput{Text: encryptForTest(t, text)}); err != nil {
			t.Fatalf("SendMessage %q: %v", text, err)
		}
	}

	history, err := service.GetMessages(ctx, bob, alice)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].ID <= history[i-1].ID {
			t.Fatalf("expected ascending history, got ids %d then %d", history[i-1].ID, history[i].ID)
		}
	}
	if history[0].Text == nil || utils.DecryptMessage(integrationSecret, *history[0].Text) != "one" {
		t.Fatalf("expected oldest message first, got %+v", history[0])
	}
}

func TestChatServiceMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service, hub := newIntegrationChatService(pool)

	alice := createChatTestUser(t, ctx, pool, "alice")
	bob := createChatTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupChatTestUsers(t, ctx, pool, alice, bob) })

	if _, err := service.SendMessage(ctx, alice, bob, SendMessageInput{Text: encryptForTest(t, "unread")}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if err := service.MarkMessagesRead(ctx, bob, alice); err != nil {
		t.Fatalf("first MarkMessagesRead: %v", err)
	}
	if err := service.MarkMessagesRead(ctx, bob, alice); err != nil {
		t.Fatalf("second MarkMessagesRead: %v", err)
	}

	summaries, err := service.ListConversations(ctx, bob)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 1 || summaries[0].UnreadCount != 0 {
		t.Fatalf("expected no unread messages, got %+v", summaries)
	}

	receipts := 0
	for _, emit := range hub.emitted() {
		if emit.eventType == "messagesRead" && emit.userID == alice {
			receipts++
		}
	}
	if receipts != 2 {
		t.Fatalf("expected a receipt per call, got %d", receipts)
	}
}

func TestChatServiceGroupFlow(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service, hub := newIntegrationChatService(pool)

	admin := createChatTestUser(t, ctx, pool, "admin")
	member := createChatTestUser(t, ctx, pool, "member")
	other := createChatTestUser(t, ctx, pool, "other")
	outsider := createChatTestUser(t, ctx, pool, "outsider")
	t.Cleanup(func() { cleanupChatTestUsers(t, ctx, pool, admin, member, other, outsider) })

	group, err := service.CreateGroup(ctx, admin, "integration crew", []int64{member, other})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if !group.IsGroup || group.GroupAdminID == nil || *group.GroupAdminID != admin {
		t.Fatalf("unexpected group: %+v", group)
	}
	if len(group.Participants) != 3 {
		t.Fatalf("expected admin plus 2 members, got %+v", group.Participants)
	}
	if group.LastMessage == nil || group.LastMessage.Text != `Group "integration crew" created` {
		t.Fatalf("expected creation summary, got %+v", group.LastMessage)
	}

	announcements := 0
	for _, emit := range hub.emitted() {
		if emit.eventType == "newGroup" {
			announcements++
		}
	}
	if announcements != 3 {
		t.Fatalf("expected every participant announced, got %d", announcements)
	}

	groups, err := service.ListGroups(ctx, member)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != group.ID {
		t.Fatalf("expected member to see the group, got %+v", groups)
	}

	// Sends addressed to the group id only behave as group sends when the
	// id does not collide with a user id; a collision resolves as a direct
	// message by policy.
	var collides bool
	if err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", group.ID).Scan(&collides); err != nil {
		t.Fatalf("collision probe: %v", err)
	}
	if collides {
		t.Skipf("group id %d collides with a user id in this database", group.ID)
	}

	message, err := service.SendMessage(ctx, admin, group.ID, SendMessageInput{Text: encryptForTest(t, "welcome")})
	if err != nil {
		t.Fatalf("group SendMessage: %v", err)
	}
	if message.ConversationID != group.ID {
		t.Fatalf("expected message in group %d, got %d", group.ID, message.ConversationID)
	}

	history, err := service.GetMessages(ctx, member, group.ID)
	if err != nil {
		t.Fatalf("group GetMessages: %v", err)
	}
	if len(history) != 1 || history[0].ID != message.ID {
		t.Fatalf("expected the group message in history, got %+v", history)
	}

	if _, err := service.SendMessage(ctx, outsider, group.ID, SendMessageInput{Text: encryptForTest(t, "let me in")}); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant for outsider, got %v", err)
	}
}

func newIntegrationChatService(pool *pgxpool.Pool) (*ChatService, *recordingNotifier) {
	hub := &recordingNotifier{}
	service := NewChatService(
		pool,
		repository.NewConversationRepository(pool),
		repository.NewMessageRepository(pool),
		repository.NewUserRepository(pool),
		hub,
		nil,
		NoopPushSender{},
		nil,
		integrationSecret,
	)
	return service, hub
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func createChatTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, label string) int64 {
	t.Helper()

	userRepo := repository.NewUserRepository(pool)
	user := &models.User{
		Email:        fmt.Sprintf("chat-test-%s-%d@example.com", label, time.Now().UnixNano()),
		FullName:     "Chat Test " + label,
		PasswordHash: "test-hash",
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s): %v", label, err)
	}
	return user.ID
}

func cleanupChatTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...int64) {
	t.Helper()

	// Dropping the conversations cascades their participants and messages.
	if _, err := pool.Exec(ctx, `
		DELETE FROM conversations
		WHERE id IN (
			SELECT conversation_id FROM conversation_participants WHERE user_id = ANY($1)
		)
	`, userIDs); err != nil {
		t.Errorf("cleanup conversations: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs); err != nil {
		t.Errorf("cleanup users: %v", err)
	}
}

func encryptForTest(t *testing.T, plain string) string {
	t.Helper()
	encrypted, err := utils.EncryptMessage(integrationSecret, plain)
	if err != nil {
		t.Fatalf("EncryptMessage: %v", err)
	}
	return encrypted
}
