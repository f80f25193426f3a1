package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestJWTMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/private", JWTMiddleware("secret"), func(c *fiber.Ctx) error {
		if c.Locals("account_id") == nil || c.Locals("role") == nil {
			return fiber.NewError(fiber.StatusUnauthorized)
		}
		return c.SendStatus(http.StatusOK)
	})

	svc := NewService("secret", nil)

	// missing token
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}

	// wrong scheme
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Basic abc")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for non-bearer scheme")
	}

	// valid token
	token, _ := svc.signToken("account-1", RoleInstructor, accessTokenTTL)
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok")
	}

	// token signed with another secret
	other := NewService("other-secret", nil)
	token, _ = other.signToken("account-1", RoleInstructor, accessTokenTTL)
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for foreign signature")
	}
}
