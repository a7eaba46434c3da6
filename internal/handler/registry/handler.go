package registry

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medledger/registry-api/internal/handler"
	"github.com/medledger/registry-api/internal/middleware"
	"github.com/medledger/registry-api/internal/model"
	"github.com/medledger/registry-api/internal/service/identity"
)

type Handler struct {
	service *identity.Service
}

func NewHandler(service *identity.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reg := r.Group("/registry")
	{
		reg.POST("/doctors", h.RegisterDoctor)
		reg.POST("/labs", h.RegisterLab)
		reg.GET("/roles/:address", h.GetRole)
	}
}

func (h *Handler) RegisterDoctor(c *gin.Context) {
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing caller identity"))
		return
	}

	var req model.RegisterIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.RegisterDoctor(c.Request.Context(), caller, model.Identity(req.Address)); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{
		"address": req.Address,
		"role":    model.RoleDoctor,
	}))
}

func (h *Handler) RegisterLab(c *gin.Context) {
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing caller identity"))
		return
	}

	var req model.RegisterIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.RegisterLab(c.Request.Context(), caller, model.Identity(req.Address)); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{
		"address": req.Address,
		"role":    model.RoleLab,
	}))
}

func (h *Handler) GetRole(c *gin.Context) {
	address := model.Identity(c.Param("address"))

	role, err := h.service.RoleOf(c.Request.Context(), address)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"address": address,
		"role":    role,
	}))
}
