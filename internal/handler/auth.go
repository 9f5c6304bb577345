package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/washpoint/carwash/internal/constants"
	"github.com/washpoint/carwash/internal/dto"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/middleware"
	"github.com/washpoint/carwash/internal/service"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
	"github.com/washpoint/carwash/pkg/validation"
)

type AuthHandler struct {
	authService  *service.AuthService
	verification *service.VerificationService
}

func NewAuthHandler(authService *service.AuthService, verification *service.VerificationService) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		verification: verification,
	}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse(constants.MsgBadRequest, validation.Messages(err)))
		return false
	}
	return true
}

// Register handles public self-registration
func (h *AuthHandler) Register(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "Register")

	var req dto.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	// An authenticated staff member may create privileged accounts; on the
	// public route this is nil and the role is forced to client.
	actor := middleware.CurrentUser(c)

	user, err := h.authService.Register(ctx, &req, actor)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		logger.WarnWithContext(ctx, "Registration failed").
			Int("http_status", status).
			Err(err).
			Log()
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login exchanges credentials for a token pair
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "Login")

	var req dto.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Login(ctx, &req)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		logger.WarnWithContext(ctx, "Login failed").
			Int("http_status", status).
			Err(err).
			Log()
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token into a new pair
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "Refresh")

	var req dto.RefreshTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Refresh(ctx, &req)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		logger.WarnWithContext(ctx, "Token refresh failed").
			Int("http_status", status).
			Err(err).
			Log()
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout revokes the caller's session(s)
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "Logout")

	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return
	}

	// No refresh token in the body means we can't tell which session to
	// drop, so all of the caller's sessions are revoked.
	var req dto.LogoutRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.authService.Logout(ctx, user.ID, &req); err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Logged out successfully"))
}

// LogoutAll revokes every session the caller holds
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "LogoutAll")

	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return
	}

	req := dto.LogoutRequest{AllDevices: true}
	if err := h.authService.Logout(ctx, user.ID, &req); err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Logged out from all devices"))
}

// Me returns the authenticated account
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "Me")

	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return
	}

	resp, err := h.authService.CurrentUser(ctx, user.ID)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ChangePassword updates the caller's own password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "ChangePassword")

	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return
	}

	var req dto.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.ChangePassword(ctx, user.ID, &req); err != nil {
		status := apperrors.ToHTTPStatus(err)
		logger.WarnWithContext(ctx, "Password change failed").
			Int("http_status", status).
			Err(err).
			Log()
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Password changed successfully"))
}

// VerifyEmail redeems an email verification token
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "VerifyEmail")

	var req dto.VerifyEmailRequest
	if !bindJSON(c, &req) {
		return
	}

	if _, err := h.verification.ConfirmEmail(ctx, req.Token); err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Email verified successfully"))
}

// ResendVerification issues a fresh verification token. The response never
// reveals whether the address exists.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "ResendVerification")

	var req dto.ResendVerificationRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.verification.RequestEmailVerification(ctx, req.Email); err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("If the address exists, a verification email has been sent"))
}

// ForgotPassword starts the reset flow. Same uniform response.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "ForgotPassword")

	var req dto.ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.verification.RequestPasswordReset(ctx, req.Email); err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("If the address exists, a password reset email has been sent"))
}

// ResetPassword redeems a reset token and sets the new password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "ResetPassword")

	var req dto.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse(apperrors.GetErrorMessage(apperrors.ErrPasswordMismatch), nil))
		return
	}

	if _, err := h.verification.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		status := apperrors.ToHTTPStatus(err)
		logger.WarnWithContext(ctx, "Password reset failed").
			Int("http_status", status).
			Err(err).
			Log()
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Password reset successfully"))
}
