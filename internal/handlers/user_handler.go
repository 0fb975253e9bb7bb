package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jophinbabu/Chatty/internal/models"
)

type userApplicationService interface {
	ListUsers(ctx context.Context, userID int64) ([]models.User, error)
}

type presenceDirectory interface {
	OnlineIDs() []int64
}

type UserHandler struct {
	service  userApplicationService
	presence presenceDirectory
}

// sidebarUser decorates a user with the presence-derived online flag.
type sidebarUser struct {
	models.User
	Online bool `json:"online"`
}

func NewUserHandler(service userApplicationService, presence presenceDirectory) *UserHandler {
	return &UserHandler{service: service, presence: presence}
}

// ListUsers returns everyone except the caller, for the chat sidebar.
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	userID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	users, err := h.service.ListUsers(c.Context(), userID)
	if err != nil {
		return mapChatError(c, err)
	}

	online := make(map[int64]bool)
	for _, id := range h.presence.OnlineIDs() {
		online[id] = true
	}

	decorated := make([]sidebarUser, 0, len(users))
	for _, user := range users {
		decorated = append(decorated, sidebarUser{User: user, Online: online[user.ID]})
	}

	return c.JSON(decorated)
}
