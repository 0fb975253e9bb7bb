package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jophinbabu/Chatty/internal/models"
	"github.com/jophinbabu/Chatty/internal/repository"
	"github.com/jophinbabu/Chatty/pkg/utils"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotParticipant = errors.New("not a participant")
)

const pushPreviewLimit = 50

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListAllExcept(ctx context.Context, userID int64) ([]models.User, error)
}

type conversationStore interface {
	CreateOrGetDirect(ctx context.Context, userA, userB int64) (*models.Conversation, error)
	FindDirect(ctx context.Context, userA, userB int64) (*models.Conversation, error)
	GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error)
	GetByIDForParticipant(ctx context.Context, conversationID, participantID int64) (*models.Conversation, error)
	ListForParticipant(ctx context.Context, participantID int64) ([]models.ConversationSummary, error)
	ListGroupsForParticipant(ctx context.Context, participantID int64) ([]models.Conversation, error)
}

type messageStore interface {
	ListByConversation(ctx context.Context, conversationID int64) ([]models.Message, error)
	MarkReadFromSender(ctx context.Context, conversationID, senderID int64) (int64, error)
}

// notifier is the presence directory surface the services need: targeted
// emission and participant fanout. The websocket hub implements it.
type notifier interface {
	Emit(userID int64, eventType string, data any)
	Fanout(participantIDs []int64, excludeID int64, eventType string, data any)
}

type ChatService struct {
	db               *pgxpool.Pool
	conversationRepo conversationStore
	messageRepo      messageStore
	userRepo         userReader
	hub              notifier
	storage          StorageService
	push             PushSender
	assistant        *AssistantService
	messageSecret    string
	append           appendFunc
}

func NewChatService(
	db *pgxpool.Pool,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	userRepo userReader,
	hub notifier,
	storage StorageService,
	push PushSender,
	assistant *AssistantService,
	messageSecret string,
) *ChatService {
	return &ChatService{
		db:               db,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		hub:              hub,
		storage:          storage,
		push:             push,
		assistant:        assistant,
		messageSecret:    messageSecret,
		append: func(ctx context.Context, conversationID, senderID int64, params repository.CreateMessageParams, preview string) (*models.Message, error) {
			return appendMessageTx(ctx, db, conversationID, senderID, params, preview)
		},
	}
}

// SendMessageInput carries the optional payload parts of a send request.
// Text arrives encrypted by the caller; Image and Audio are base64 data
// URLs not yet uploaded.
type SendMessageInput struct {
	Text            string
	Image           string
	Audio           string
	DurationSeconds int
	SenderName      string
}

// resolvedTarget is the explicit outcome of target disambiguation: either
// direct-message intent toward PeerID, or an existing (group) conversation.
type resolvedTarget struct {
	Conversation *models.Conversation
	Direct       bool
	PeerID       int64
}

// SendMessage resolves the target, persists the message plus the
// conversation summary, fans it out to online participants and kicks off
// the post-response collaborators (push, assistant).
func (s *ChatService) SendMessage(
	ctx context.Context,
	senderID int64,
	targetID int64,
	input SendMessageInput,
) (*models.Message, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" && input.Image == "" && input.Audio == "" {
		return nil, ErrInvalidInput
	}
	if input.DurationSeconds < 0 {
		return nil, ErrInvalidInput
	}

	imageURL, err := s.storeAttachment(ctx, input.Image, "chat-images")
	if err != nil {
		return nil, err
	}
	audioURL, err := s.storeAttachment(ctx, input.Audio, "chat-audio")
	if err != nil {
		return nil, err
	}

	target, err := s.resolveTarget(ctx, senderID, targetID, resolveForSend)
	if err != nil {
		return nil, err
	}
	conversation := target.Conversation

	params := repository.CreateMessageParams{
		ImageURL:        imageURL,
		AudioURL:        audioURL,
		DurationSeconds: input.DurationSeconds,
	}
	if text != "" {
		params.Text = &text
	}

	preview := s.previewText(text, imageURL != nil)
	message, err := s.appendMessage(ctx, conversation.ID, senderID, params, preview)
	if err != nil {
		return nil, err
	}

	s.hub.Fanout(conversation.Participants, senderID, "newMessage", message)

	go s.notifyRecipients(conversation, senderID, input.SenderName, preview)

	// Assistant replies run after the response path; their failures are
	// only ever visible as injected chat content.
	if s.assistant != nil && target.Direct && target.PeerID == s.assistant.UserID() && text != "" {
		go func() {
			if err := s.assistant.Reply(context.Background(), conversation, senderID, text); err != nil {
				log.Printf("assistant reply failed: %v", err)
			}
		}()
	}

	return message, nil
}

// GetMessages returns the resolved conversation's history in ascending
// order. A target with no conversation yet yields an empty list, not an
// error.
func (s *ChatService) GetMessages(
	ctx context.Context,
	senderID int64,
	targetID int64,
) ([]models.Message, error) {
	target, err := s.resolveTarget(ctx, senderID, targetID, resolveForRead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []models.Message{}, nil
		}
		return nil, err
	}

	return s.messageRepo.ListByConversation(ctx, target.Conversation.ID)
}

// MarkMessagesRead bulk-transitions unread messages from the counterparty
// to read and notifies them with a read receipt if online. Always succeeds,
// even with no conversation or no matching rows.
func (s *ChatService) MarkMessagesRead(
	ctx context.Context,
	readerID int64,
	counterpartyID int64,
) error {
	conversation, err := s.conversationRepo.FindDirect(ctx, readerID, counterpartyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	if _, err := s.messageRepo.MarkReadFromSender(ctx, conversation.ID, counterpartyID); err != nil {
		return err
	}

	s.hub.Emit(counterpartyID, "messagesRead", map[string]any{
		"read_by":         readerID,
		"conversation_id": conversation.ID,
	})

	return nil
}

// CreateGroup creates a group conversation with the caller as admin and
// permanent member, and announces it to every online participant.
func (s *ChatService) CreateGroup(
	ctx context.Context,
	adminID int64,
	name string,
	memberIDs []int64,
) (*models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(memberIDs) < 2 {
		return nil, ErrInvalidInput
	}

	participants := make([]int64, 0, len(memberIDs)+1)
	seen := map[int64]bool{adminID: true}
	participants = append(participants, adminID)
	for _, memberID := range memberIDs {
		if memberID <= 0 {
			return nil, ErrInvalidInput
		}
		if seen[memberID] {
			continue
		}
		seen[memberID] = true
		participants = append(participants, memberID)
	}
	if len(participants) < 3 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	summary := fmt.Sprintf("Group %q created", name)
	conversation, err := repository.NewConversationRepository(tx).CreateGroup(ctx, adminID, name, participants, summary)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// Everyone including the admin gets the announcement.
	for _, participantID := range conversation.Participants {
		s.hub.Emit(participantID, "newGroup", conversation)
	}

	return conversation, nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	return s.conversationRepo.ListForParticipant(ctx, userID)
}

func (s *ChatService) ListGroups(ctx context.Context, userID int64) ([]models.Conversation, error) {
	return s.conversationRepo.ListGroupsForParticipant(ctx, userID)
}

func (s *ChatService) ListUsers(ctx context.Context, userID int64) ([]models.User, error) {
	return s.userRepo.ListAllExcept(ctx, userID)
}

// resolveMode selects between the write path, which creates the direct
// conversation on first contact and rejects non-members, and the read
// path, which never creates and reports any miss as pgx.ErrNoRows.
type resolveMode int

const (
	resolveForSend resolveMode = iota
	resolveForRead
)

// resolveTarget disambiguates a target id shared between the user and
// conversation id spaces. The user probe runs first: direct-message intent
// wins ties, and reversing the order would change how ambiguous ids
// resolve.
func (s *ChatService) resolveTarget(ctx context.Context, senderID, targetID int64, mode resolveMode) (*resolvedTarget, error) {
	if targetID <= 0 {
		return nil, ErrInvalidInput
	}

	_, err := s.userRepo.GetByID(ctx, targetID)
	if err == nil {
		var conversation *models.Conversation
		if mode == resolveForSend {
			if targetID == senderID {
				return nil, ErrInvalidInput
			}
			conversation, err = s.conversationRepo.CreateOrGetDirect(ctx, senderID, targetID)
		} else {
			conversation, err = s.conversationRepo.FindDirect(ctx, senderID, targetID)
		}
		if err != nil {
			return nil, err
		}
		return &resolvedTarget{Conversation: conversation, Direct: true, PeerID: targetID}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if mode == resolveForRead {
		conversation, err := s.conversationRepo.GetByIDForParticipant(ctx, targetID, senderID)
		if err != nil {
			return nil, err
		}
		return &resolvedTarget{Conversation: conversation}, nil
	}

	conversation, err := s.conversationRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !containsID(conversation.Participants, senderID) {
		return nil, ErrNotParticipant
	}

	return &resolvedTarget{Conversation: conversation}, nil
}

// previewText builds the plain sidebar preview for a message.
func (s *ChatService) previewText(encryptedText string, hasImage bool) string {
	if encryptedText != "" {
		return utils.DecryptMessage(s.messageSecret, encryptedText)
	}
	if hasImage {
		return "Sent an image"
	}
	return "Sent a voice note"
}

func (s *ChatService) storeAttachment(ctx context.Context, dataURL, folder string) (*string, error) {
	if dataURL == "" {
		return nil, nil
	}
	if s.storage == nil {
		return nil, ErrStorageUnavailable
	}

	data, contentType, filename, err := parseDataURL(dataURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	url, err := s.storage.Store(ctx, data, folder+"/"+filename, contentType)
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	return &url, nil
}

// notifyRecipients hands the message off to the push collaborator for
// every participant except the sender. Best effort: failures are logged
// and never reach the request path.
func (s *ChatService) notifyRecipients(conversation *models.Conversation, senderID int64, senderName, preview string) {
	if s.push == nil {
		return
	}

	title := "New Message"
	if senderName != "" {
		title = "New Message from " + senderName
	}
	if conversation.IsGroup && conversation.GroupName != nil {
		title = *conversation.GroupName + ": " + senderName
	}

	body := preview
	if body == "" {
		body = "Sent an attachment"
	}
	if len(body) > pushPreviewLimit {
		body = body[:pushPreviewLimit] + "..."
	}

	payload := PushPayload{Title: title, Body: body, URL: "/", Icon: "/logo.jpg"}
	for _, participantID := range conversation.Participants {
		if participantID == senderID {
			continue
		}
		if err := s.push.Send(context.Background(), participantID, payload); err != nil {
			log.Printf("push to user %d failed: %v", participantID, err)
		}
	}
}

// appendMessageTx persists a message row and refreshes the conversation
// summary in one transaction. Both services share this append path so the
// assistant reply and human sends stay consistent.
func appendMessageTx(
	ctx context.Context,
	db *pgxpool.Pool,
	conversationID int64,
	senderID int64,
	params repository.CreateMessageParams,
	preview string,
) (*models.Message, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	message, err := repository.NewMessageRepository(tx).Create(ctx, conversationID, senderID, params)
	if err != nil {
		return nil, err
	}

	if err := repository.NewConversationRepository(tx).UpdateLastMessage(ctx, conversationID, preview, senderID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return message, nil
}

func (s *ChatService) appendMessage(
	ctx context.Context,
	conversationID int64,
	senderID int64,
	params repository.CreateMessageParams,
	preview string,
) (*models.Message, error) {
	return s.append(ctx, conversationID, senderID, params, preview)
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
