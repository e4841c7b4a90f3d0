package testutil

import (
	"net/http"
	"testing"

	"github.com/vrsandeep/tunedl/internal/auth"
	"github.com/vrsandeep/tunedl/internal/models"
)

// TestSecret signs tokens in tests.
const TestSecret = "test-secret"

// Token returns a signed token for a user with the given id and role.
func Token(t *testing.T, id, role string) string {
	t.Helper()
	tok, err := auth.NewManager(TestSecret).Issue(models.User{ID: id, Role: role}, 0)
	if err != nil {
		t.Fatalf("Failed to issue token for test user '%s': %v", id, err)
	}
	return tok
}

// Authorize sets the bearer token for a user on req.
func Authorize(t *testing.T, req *http.Request, id, role string) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+Token(t, id, role))
	return req
}
