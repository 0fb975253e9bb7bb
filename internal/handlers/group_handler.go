package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jophinbabu/Chatty/internal/models"
)

type groupApplicationService interface {
	CreateGroup(ctx context.Context, adminID int64, name string, memberIDs []int64) (*models.Conversation, error)
	ListGroups(ctx context.Context, userID int64) ([]models.Conversation, error)
}

type GroupHandler struct {
	service groupApplicationService
}

type createGroupRequest struct {
	Name    string  `json:"name"`
	Members []int64 `json:"members"`
}

func NewGroupHandler(service groupApplicationService) *GroupHandler {
	return &GroupHandler{service: service}
}

func (h *GroupHandler) CreateGroup(c *fiber.Ctx) error {
	userID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || len(req.Members) < 2 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Group must have a name and at least 2 other members",
		})
	}

	group, err := h.service.CreateGroup(c.Context(), userID, req.Name, req.Members)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(group)
}

func (h *GroupHandler) ListGroups(c *fiber.Ctx) error {
	userID, err := parseAuthUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	groups, err := h.service.ListGroups(c.Context(), userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(groups)
}
