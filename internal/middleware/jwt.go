package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/washpoint/carwash/internal/constants"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/model"
	"github.com/washpoint/carwash/internal/service"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
	"go.uber.org/zap"
)

type JWTMiddleware struct {
	jwtService *service.JWTService
	store      service.UserStore
}

func NewJWTMiddleware(jwtService *service.JWTService, store service.UserStore) *JWTMiddleware {
	return &JWTMiddleware{
		jwtService: jwtService,
		store:      store,
	}
}

func abortUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
	c.Abort()
}

// RequireAuth validates the access token and loads the live account into
// the request. The database read means a deactivated or deleted account is
// rejected even while its token is still cryptographically valid.
func (m *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(constants.HeaderAuthorization)
		if authHeader == "" {
			logger.GetLogger().Warn("Missing Authorization header",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))
			abortUnauthorized(c)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != constants.AuthSchemeBearer {
			logger.GetLogger().Warn("Invalid Authorization header format",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))
			abortUnauthorized(c)
			return
		}

		claims, err := m.jwtService.VerifyTokenOfType(tokenParts[1], service.TokenTypeAccess)
		if err != nil {
			logger.GetLogger().Warn("Invalid or expired token",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Error(err))
			abortUnauthorized(c)
			return
		}

		userID, err := claims.SubjectID()
		if err != nil {
			logger.GetLogger().Warn("Invalid subject in token",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			abortUnauthorized(c)
			return
		}

		ctx := c.Request.Context()
		user, err := m.store.GetByID(ctx, userID)
		if err != nil {
			logger.GetLogger().Warn("Token subject not found",
				zap.String("path", c.Request.URL.Path),
				zap.String("user_id", userID.String()),
				zap.Error(err))
			abortUnauthorized(c)
			return
		}
		if !user.IsActive {
			logger.GetLogger().Warn("Token for deactivated account",
				zap.String("user_id", userID.String()))
			abortUnauthorized(c)
			return
		}

		c.Set(constants.GinKeyUser, user)
		c.Set(constants.GinKeyUserID, userID.String())
		c.Set(constants.GinKeyUserEmail, user.Email)
		c.Set(constants.GinKeyUserRole, string(user.Role))

		ctx = ctxutil.WithUserID(ctx, userID.String())
		ctx = ctxutil.WithValue(ctx, ctxutil.UserRoleKey, string(user.Role))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole gates a route on one exact role. Higher roles do not pass;
// a route for washers is for washers only.
func RequireRole(required model.Role) gin.HandlerFunc {
	return requireRole(string(required), func(r model.Role) bool {
		return r == required
	})
}

// label is what the 403 body names as required, so composite guards can say
// "manager or admin" rather than a single role.
func requireRole(label string, allowed func(model.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			abortUnauthorized(c)
			return
		}

		if !allowed(user.Role) {
			logger.GetLogger().Warn("Insufficient role for route",
				zap.String("path", c.Request.URL.Path),
				zap.String("user_id", user.ID.String()),
				zap.String("user_role", string(user.Role)),
				zap.String("required_role", label))
			err := apperrors.NewForbiddenError(label)
			c.JSON(http.StatusForbidden, constants.BuildErrorResponse(constants.MsgForbidden, err.Error()))
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAdmin restricts the route to admins
func RequireAdmin() gin.HandlerFunc {
	return requireRole("admin", func(r model.Role) bool {
		return r == model.RoleAdmin
	})
}

// RequireStaff restricts the route to managers and admins
func RequireStaff() gin.HandlerFunc {
	return requireRole("manager or admin", func(r model.Role) bool {
		return r == model.RoleManager || r == model.RoleAdmin
	})
}

// CurrentUser pulls the authenticated account set by RequireAuth
func CurrentUser(c *gin.Context) *model.User {
	value, exists := c.Get(constants.GinKeyUser)
	if !exists {
		return nil
	}
	user, ok := value.(*model.User)
	if !ok {
		return nil
	}
	return user
}
