package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/washpoint/carwash/internal/constants"
	"github.com/washpoint/carwash/internal/model"
	"github.com/washpoint/carwash/pkg/logger"
)

func init() {
	logger.InitTestLogger()
	gin.SetMode(gin.TestMode)
}

func guardContext(t *testing.T, role model.Role) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	c.Set(constants.GinKeyUser, &model.User{
		ID:    uuid.New(),
		Email: string(role) + "@example.com",
		Role:  role,
	})
	return c, rec
}

func TestRequireRoleExactMatchOnly(t *testing.T) {
	tests := []struct {
		name      string
		role      model.Role
		required  model.Role
		wantAbort bool
	}{
		{name: "Washer passes washer gate", role: model.RoleWasher, required: model.RoleWasher},
		{name: "Manager rejected by washer gate", role: model.RoleManager, required: model.RoleWasher, wantAbort: true},
		{name: "Admin rejected by washer gate", role: model.RoleAdmin, required: model.RoleWasher, wantAbort: true},
		{name: "Client rejected by manager gate", role: model.RoleClient, required: model.RoleManager, wantAbort: true},
		{name: "Manager passes manager gate", role: model.RoleManager, required: model.RoleManager},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := guardContext(t, tt.role)
			RequireRole(tt.required)(c)

			if tt.wantAbort {
				if !c.IsAborted() {
					t.Errorf("Expected %s to be rejected by RequireRole(%s)", tt.role, tt.required)
				}
				if rec.Code != http.StatusForbidden {
					t.Errorf("Expected status 403, got %d", rec.Code)
				}
			} else if c.IsAborted() {
				t.Errorf("Expected %s to pass RequireRole(%s), got status %d", tt.role, tt.required, rec.Code)
			}
		})
	}
}

func TestRequireStaffHierarchy(t *testing.T) {
	tests := []struct {
		name      string
		role      model.Role
		wantAbort bool
	}{
		{name: "Admin passes", role: model.RoleAdmin},
		{name: "Manager passes", role: model.RoleManager},
		{name: "Washer rejected", role: model.RoleWasher, wantAbort: true},
		{name: "Client rejected", role: model.RoleClient, wantAbort: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := guardContext(t, tt.role)
			RequireStaff()(c)

			if tt.wantAbort != c.IsAborted() {
				t.Errorf("Expected aborted=%v for %s, got aborted=%v", tt.wantAbort, tt.role, c.IsAborted())
			}
			if tt.wantAbort && !strings.Contains(rec.Body.String(), "manager or admin") {
				t.Errorf("Expected 403 body to name \"manager or admin\", got %s", rec.Body.String())
			}
		})
	}
}

func TestRequireAdminRejectsManager(t *testing.T) {
	c, rec := guardContext(t, model.RoleManager)
	RequireAdmin()(c)

	if !c.IsAborted() {
		t.Error("Expected manager to be rejected by RequireAdmin")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rec.Code)
	}
}

func TestRoleGuardsWithoutUserUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/guarded", nil)

	RequireRole(model.RoleClient)(c)

	if !c.IsAborted() {
		t.Error("Expected missing identity to abort the guard")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}
