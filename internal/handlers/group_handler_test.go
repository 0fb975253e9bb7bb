package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jophinbabu/Chatty/internal/models"
	"github.com/jophinbabu/Chatty/internal/services"
)

type stubGroupService struct {
	createResult *models.Conversation
	createErr    error
	listResult   []models.Conversation
	listErr      error
	lastAdminID  int64
	lastName     string
	lastMembers  []int64
}

func (s *stubGroupService) CreateGroup(
	_ context.Context,
	adminID int64,
	name string,
	memberIDs []int64,
) (*models.Conversation, error) {
	s.lastAdminID = adminID
	s.lastName = name
	s.lastMembers = memberIDs
	return s.createResult, s.createErr
}

func (s *stubGroupService) ListGroups(_ context.Context, _ int64) ([]models.Conversation, error) {
	return s.listResult, s.listErr
}

func newGroupTestApp(service *stubGroupService) *fiber.App {
	handler := NewGroupHandler(service)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "7")
		return c.Next()
	})
	app.Post("/api/v1/groups", handler.CreateGroup)
	app.Get("/api/v1/groups", handler.ListGroups)
	return app
}

func TestCreateGroupForwardsRequest(t *testing.T) {
	name := "weekend crew"
	service := &stubGroupService{
		createResult: &models.Conversation{
			ID:           31,
			IsGroup:      true,
			GroupName:    &name,
			Participants: []int64{7, 2, 3},
		},
	}
	app := newGroupTestApp(service)

	body, _ := json.Marshal(map[string]any{
		"name":    name,
		"members": []int64{2, 3},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastAdminID != 7 || service.lastName != name {
		t.Fatalf("expected admin 7 and name %q, got %d and %q", name, service.lastAdminID, service.lastName)
	}
	if len(service.lastMembers) != 2 {
		t.Fatalf("unexpected members: %+v", service.lastMembers)
	}

	var group models.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&group); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if group.ID != 31 || !group.IsGroup {
		t.Fatalf("unexpected group: %+v", group)
	}
}

func TestCreateGroupRejectsTooFewMembers(t *testing.T) {
	service := &stubGroupService{}
	app := newGroupTestApp(service)

	body, _ := json.Marshal(map[string]any{
		"name":    "just us",
		"members": []int64{2},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if service.lastAdminID != 0 {
		t.Fatal("expected service not to be called")
	}
}

func TestCreateGroupMapsServiceValidation(t *testing.T) {
	app := newGroupTestApp(&stubGroupService{createErr: services.ErrInvalidInput})

	body, _ := json.Marshal(map[string]any{
		"name":    "dupes",
		"members": []int64{2, 2},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListGroupsReturnsArray(t *testing.T) {
	name := "book club"
	app := newGroupTestApp(&stubGroupService{
		listResult: []models.Conversation{
			{ID: 31, IsGroup: true, GroupName: &name, Participants: []int64{7, 2, 3}},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/groups", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var groups []models.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&groups); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(groups) != 1 || groups[0].GroupName == nil || *groups[0].GroupName != name {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}
