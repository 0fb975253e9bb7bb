package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jophinbabu/Chatty/internal/models"
	"github.com/jophinbabu/Chatty/internal/repository"
	"github.com/jophinbabu/Chatty/pkg/utils"
	"google.golang.org/api/option"
)

var (
	ErrBackendExhausted = errors.New("all assistant backends failed")
	ErrDecryptionFailed = errors.New("could not decrypt assistant prompt")
)

// Backend is one generation model in the fallback chain.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

type appendFunc func(
	ctx context.Context,
	conversationID int64,
	senderID int64,
	params repository.CreateMessageParams,
	preview string,
) (*models.Message, error)

// AssistantService injects generated replies into conversations addressed
// to the assistant account. It runs entirely after the originating send has
// responded; every failure either degrades into a delivered error message
// or is logged and dropped.
type AssistantService struct {
	userID   int64
	secret   string
	backends []Backend
	timeout  time.Duration
	hub      notifier
	append   appendFunc
}

func NewAssistantService(
	db *pgxpool.Pool,
	hub notifier,
	backends []Backend,
	userID int64,
	messageSecret string,
	timeout time.Duration,
) *AssistantService {
	return &AssistantService{
		userID:   userID,
		secret:   messageSecret,
		backends: backends,
		timeout:  timeout,
		hub:      hub,
		append: func(ctx context.Context, conversationID, senderID int64, params repository.CreateMessageParams, preview string) (*models.Message, error) {
			return appendMessageTx(ctx, db, conversationID, senderID, params, preview)
		},
	}
}

func (s *AssistantService) UserID() int64 {
	return s.userID
}

// Reply decrypts the prompt, walks the fallback chain, and appends the
// outcome (generated text or a user-visible error) as a message from the
// assistant, delivered to the original sender only.
func (s *AssistantService) Reply(
	ctx context.Context,
	conversation *models.Conversation,
	senderID int64,
	encryptedPrompt string,
) error {
	prompt := utils.DecryptMessage(s.secret, encryptedPrompt)
	if strings.TrimSpace(prompt) == "" {
		return ErrDecryptionFailed
	}

	replyText, err := generateWithFallback(ctx, s.backends, prompt, s.timeout)
	if err != nil {
		replyText = "I'm having trouble connecting to AI. Error: " + err.Error()
	}

	encrypted, err := utils.EncryptMessage(s.secret, replyText)
	if err != nil {
		return fmt.Errorf("encrypt assistant reply: %w", err)
	}

	message, err := s.append(ctx, conversation.ID, s.userID, repository.CreateMessageParams{Text: &encrypted}, replyText)
	if err != nil {
		return fmt.Errorf("store assistant reply: %w", err)
	}

	// The assistant never needs delivery to itself.
	s.hub.Emit(senderID, "newMessage", message)
	return nil
}

// generateWithFallback tries each backend in order and stops at the first
// success. Every attempt gets its own deadline so one stalled backend
// cannot hang the whole chain.
func generateWithFallback(
	ctx context.Context,
	backends []Backend,
	prompt string,
	timeout time.Duration,
) (string, error) {
	var lastErr error
	for _, backend := range backends {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		text, err := backend.Generate(attemptCtx, prompt)
		cancel()
		if err != nil {
			log.Printf("assistant backend %s failed: %v", backend.Name(), err)
			lastErr = err
			continue
		}
		return text, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no backends configured")
	}
	return "", fmt.Errorf("%w: %v", ErrBackendExhausted, lastErr)
}

// GeminiBackend is a single Gemini model behind the Backend interface.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackends builds the fallback chain over one shared client.
func NewGeminiBackends(ctx context.Context, apiKey string, modelNames []string) ([]Backend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	backends := make([]Backend, 0, len(modelNames))
	for _, name := range modelNames {
		backends = append(backends, &GeminiBackend{client: client, model: name})
	}
	return backends, nil
}

func (b *GeminiBackend) Name() string {
	return b.model
}

func (b *GeminiBackend) Generate(ctx context.Context, prompt string) (string, error) {
	model := b.client.GenerativeModel(b.model)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from %s", b.model)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no text parts in response from %s", b.model)
	}

	return text.String(), nil
}
