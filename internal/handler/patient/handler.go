package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medledger/registry-api/internal/handler"
	"github.com/medledger/registry-api/internal/middleware"
	"github.com/medledger/registry-api/internal/model"
	"github.com/medledger/registry-api/internal/service/appointment"
	"github.com/medledger/registry-api/internal/service/medical"
	"github.com/medledger/registry-api/internal/service/patient"
)

type Handler struct {
	service        *patient.Service
	appointmentSvc *appointment.Service
	medicalSvc     *medical.Service
}

func NewHandler(service *patient.Service, appointmentSvc *appointment.Service, medicalSvc *medical.Service) *Handler {
	return &Handler{
		service:        service,
		appointmentSvc: appointmentSvc,
		medicalSvc:     medicalSvc,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.RegisterPatient)
		patients.GET("/:address", h.GetProfile)
		patients.GET("/:address/appointments", h.ListAppointments)
		patients.GET("/:address/records", h.ListRecords)
	}
}

// RegisterPatient is self-service: the profile is created for the caller
// identity, never for a third party.
func (h *Handler) RegisterPatient(c *gin.Context) {
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing caller identity"))
		return
	}

	var req model.RegisterPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	profile, err := h.service.Register(c.Request.Context(), caller, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(profile))
}

func (h *Handler) GetProfile(c *gin.Context) {
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing caller identity"))
		return
	}
	address := model.Identity(c.Param("address"))

	profile, err := h.service.Profile(c.Request.Context(), caller, address)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(profile))
}

func (h *Handler) ListAppointments(c *gin.Context) {
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing caller identity"))
		return
	}
	address := model.Identity(c.Param("address"))

	ids, err := h.appointmentSvc.ListForPatient(c.Request.Context(), caller, address)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"appointment_ids": ids}))
}

func (h *Handler) ListRecords(c *gin.Context) {
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing caller identity"))
		return
	}
	address := model.Identity(c.Param("address"))

	ids, err := h.medicalSvc.ListForPatient(c.Request.Context(), caller, address)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"record_ids": ids}))
}
