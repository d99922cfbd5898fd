package appointment

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-identity/internal/handler"
	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/service/appointment"
	"github.com/jwalitptl/clinic-identity/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.POST("/:id/transition", h.TransitionAppointment)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	clinicID, ok := handler.SessionClinic(c)
	if !ok {
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	created, err := h.service.Create(c.Request.Context(), clinicID, req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, created)
}

// GetAppointment returns the appointment with both participants resolved.
func (h *Handler) GetAppointment(c *gin.Context) {
	clinicID, ok := handler.SessionClinic(c)
	if !ok {
		return
	}
	id, ok := handler.ParseUUID(c, "id")
	if !ok {
		return
	}

	view, err := h.service.Describe(c.Request.Context(), clinicID, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	clinicID, ok := handler.SessionClinic(c)
	if !ok {
		return
	}

	var query model.AppointmentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	doctorID, err := uuid.Parse(query.DoctorID)
	if err != nil {
		handler.RespondBindError(c, err)
		return
	}

	appointments, err := h.service.ListByDoctor(c.Request.Context(), clinicID, doctorID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if query.Upcoming {
		appointments = appointment.Upcoming(appointments, time.Now())
	}
	if appointments == nil {
		appointments = []*model.Appointment{}
	}
	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) TransitionAppointment(c *gin.Context) {
	clinicID, ok := handler.SessionClinic(c)
	if !ok {
		return
	}
	id, ok := handler.ParseUUID(c, "id")
	if !ok {
		return
	}

	var req model.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	updated, err := h.service.Transition(c.Request.Context(), clinicID, id, req.Status, model.TransitionPayload{
		Amount:       req.Amount,
		CancelReason: req.CancelReason,
		SuggestedAt:  req.SuggestedAt,
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, updated)
}
