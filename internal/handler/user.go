package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/washpoint/carwash/internal/constants"
	"github.com/washpoint/carwash/internal/dto"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/middleware"
	"github.com/washpoint/carwash/internal/model"
	"github.com/washpoint/carwash/internal/service"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
	"github.com/washpoint/carwash/pkg/validation"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func parseUserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid user ID", nil))
		return uuid.Nil, false
	}
	return id, true
}

func requireActor(c *gin.Context) (*model.User, bool) {
	actor := middleware.CurrentUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return nil, false
	}
	return actor, true
}

func (h *UserHandler) GetByID(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "GetByID")

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.GetByID(ctx, actor, id)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		logger.WarnWithContext(ctx, "Failed to fetch user").
			String("target_id", id.String()).
			Int("http_status", status).
			Err(err).
			Log()
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) GetAll(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "GetAll")

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	pagination := constants.ParsePaginationParams(c)

	var filter dto.UserFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse(constants.MsgBadRequest, validation.Messages(err)))
		return
	}

	res, total, pageTotal, err := h.userService.GetAll(ctx, actor, pagination.Limit, pagination.Offset, pagination.Search, filter.Role)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		logger.WarnWithContext(ctx, "Failed to list users").
			Int("http_status", status).
			Err(err).
			Log()
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildListResponse(total, pagination.Page, pageTotal, res))
}

func (h *UserHandler) Update(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "Update")

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.Update(ctx, actor, id, &req)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateRole(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "UpdateRole")

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateUserRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateRole(ctx, actor, id, &req)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		logger.WarnWithContext(ctx, "Role change rejected").
			String("target_id", id.String()).
			String("requested_role", req.Role).
			Int("http_status", status).
			Err(err).
			Log()
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *UserHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *UserHandler) setActive(c *gin.Context, active bool) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "SetActive")

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.SetActive(ctx, actor, id, active)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) Unlock(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "Unlock")

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.Unlock(ctx, actor, id)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) Delete(c *gin.Context) {
	ctx := ctxutil.NewContext(c.Request.Context(), "handler", "Delete")

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	if err := h.userService.Delete(ctx, actor, id); err != nil {
		status := apperrors.ToHTTPStatus(err)
		logger.WarnWithContext(ctx, "User deletion rejected").
			String("target_id", id.String()).
			Int("http_status", status).
			Err(err).
			Log()
		c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorMessage(err), nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse(constants.MsgDeleted))
}
