package routes

import (
	"context"
	"fmt"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jophinbabu/Chatty/internal/config"
	"github.com/jophinbabu/Chatty/internal/handlers"
	"github.com/jophinbabu/Chatty/internal/middleware"
	"github.com/jophinbabu/Chatty/internal/repository"
	"github.com/jophinbabu/Chatty/internal/services"
	chatws "github.com/jophinbabu/Chatty/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) error {
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var storageService services.StorageService
	if cfg.SupabaseURL != "" && cfg.SupabaseBucket != "" && cfg.SupabaseServiceKey != "" {
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	}

	chatHub := chatws.NewHub()
	go chatHub.Run()

	var assistantService *services.AssistantService
	if cfg.AssistantEnabled() {
		backends, err := services.NewGeminiBackends(context.Background(), cfg.GeminiAPIKey, cfg.AssistantModels)
		if err != nil {
			return fmt.Errorf("configure assistant backends: %w", err)
		}
		assistantService = services.NewAssistantService(
			db,
			chatHub,
			backends,
			cfg.AssistantUserID,
			cfg.MessageSecretKey,
			cfg.AssistantTimeout,
		)
	}

	chatService := services.NewChatService(
		db,
		conversationRepo,
		messageRepo,
		userRepo,
		chatHub,
		storageService,
		services.NoopPushSender{},
		assistantService,
		cfg.MessageSecretKey,
	)

	chatHandler := handlers.NewChatHandler(chatService, chatHub, cfg.JWTSecret)
	groupHandler := handlers.NewGroupHandler(chatService)
	userHandler := handlers.NewUserHandler(chatService, chatHub)

	api := app.Group("/api")
	v1 := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	v1.Get("/users", userHandler.ListUsers)
	v1.Get("/conversations", chatHandler.ListConversations)

	v1.Get("/messages/:id", chatHandler.GetMessages)
	v1.Post("/messages/send/:id", chatHandler.SendMessage)
	v1.Put("/messages/read/:id", chatHandler.MarkRead)

	v1.Post("/groups", groupHandler.CreateGroup)
	v1.Get("/groups", groupHandler.ListGroups)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))

	return nil
}
