package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jophinbabu/Chatty/pkg/utils"
)

func newAuthTestApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/protected", AuthRequired(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id":   c.Locals("user_id"),
			"full_name": c.Locals("full_name"),
		})
	})
	return app
}

func TestAuthRequiredAcceptsValidToken(t *testing.T) {
	const secret = "middleware-test-secret"

	token, err := utils.GenerateToken("42", "Robin", secret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	app := newAuthTestApp(secret)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthRequiredRejectsBadRequests(t *testing.T) {
	const secret = "middleware-test-secret"

	wrongSecretToken, err := utils.GenerateToken("42", "Robin", "some-other-secret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "malformed header", header: "Token abc"},
		{name: "wrong secret", header: "Bearer " + wrongSecretToken},
		{name: "garbage token", header: "Bearer not.a.jwt"},
	}

	app := newAuthTestApp(secret)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}
