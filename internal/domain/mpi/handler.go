package mpi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mpi/mpi/internal/platform/auth"
	"github.com/mpi/mpi/internal/platform/metrics"
	"github.com/mpi/mpi/pkg/pagination"
)

type Handler struct {
	svc     *Service
	merges  *MergeService
	metrics *metrics.Registry
}

func NewHandler(svc *Service, merges *MergeService, reg *metrics.Registry) *Handler {
	return &Handler{svc: svc, merges: merges, metrics: reg}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – any clinical or registration role
	readGroup := api.Group("", auth.RequireRole("admin", "registrar", "physician", "nurse", "auditor"))
	readGroup.GET("/identities", h.Search)
	readGroup.GET("/identities/:id", h.Get)
	readGroup.GET("/identities/mpi/:mpiID", h.GetByMPIID)
	readGroup.GET("/identities/fhir/:fhirID", h.GetByFHIRID)
	readGroup.GET("/identities/:id/matches", h.ListMatches)
	readGroup.GET("/identities/:id/aliases", h.ListAliases)
	readGroup.GET("/stats", h.Stats)
	readGroup.POST("/identities/:id/access", h.TrackAccess)

	// Write endpoints – admin, registrar
	writeGroup := api.Group("", auth.RequireRole("admin", "registrar"))
	writeGroup.POST("/identities", h.Create)
	writeGroup.PUT("/identities/:id", h.Update)
	writeGroup.POST("/identities/:id/verify", h.Verify)
	writeGroup.POST("/identities/:id/verification-required", h.MarkForVerification)
	writeGroup.PUT("/identities/:id/verification-status", h.UpdateVerificationStatus)
	writeGroup.POST("/identities/:id/archive", h.Archive)
	writeGroup.POST("/identities/:id/restore", h.Restore)
	writeGroup.POST("/identities/:id/aliases", h.AddAlias)
	writeGroup.DELETE("/identities/:id/aliases/:aliasId", h.RemoveAlias)
	writeGroup.POST("/matches/:id/confirm", h.ConfirmMatch)
	writeGroup.POST("/matches/:id/reject", h.RejectMatch)
	writeGroup.POST("/merge", h.Merge)
	writeGroup.POST("/identities/:id/link", h.Link)
	writeGroup.POST("/identities/:id/unlink", h.Unlink)

	// Admin-only bulk operation
	api.POST("/dedup/sweep", h.Sweep, auth.RequireRole("admin"))
}

// httpError maps domain errors onto HTTP statuses. Validation failures are
// 400, natural-key collisions 409, missing records 404, everything else 500.
func httpError(err error) error {
	var (
		validation *ValidationError
		duplicate  *DuplicateError
		notFound   *NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		return echo.NewHTTPError(http.StatusBadRequest, validation.Error())
	case errors.As(err, &duplicate):
		return echo.NewHTTPError(http.StatusConflict, duplicate.Error())
	case errors.As(err, &notFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) track(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.metrics.IncOperation(operation, outcome)
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func actor(c echo.Context) string {
	if id := auth.UserIDFromContext(c.Request().Context()); id != "" {
		return id
	}
	return "system"
}

func (h *Handler) Create(c echo.Context) error {
	var req IdentityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	identity, err := h.svc.Create(c.Request().Context(), &req, actor(c))
	h.track("identity_create", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, identity)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req IdentityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	identity, err := h.svc.Update(c.Request().Context(), id, &req, actor(c))
	h.track("identity_update", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	identity, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) GetByMPIID(c echo.Context) error {
	identity, err := h.svc.GetByMPIID(c.Request().Context(), c.Param("mpiID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) GetByFHIRID(c echo.Context) error {
	identity, err := h.svc.GetByFHIRID(c.Request().Context(), c.Param("fhirID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for name, values := range c.QueryParams() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	identities, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(identities, total, pg.Limit, pg.Offset))
}

func (h *Handler) Verify(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	identity, err := h.svc.Verify(c.Request().Context(), id, actor(c))
	h.track("identity_verify", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) MarkForVerification(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	identity, err := h.svc.MarkForVerification(c.Request().Context(), id, body.Reason, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) UpdateVerificationStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Status VerificationStatus `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	identity, err := h.svc.UpdateVerificationStatus(c.Request().Context(), id, body.Status, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) Archive(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	identity, err := h.svc.Archive(c.Request().Context(), id, actor(c))
	h.track("identity_archive", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) Restore(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	identity, err := h.svc.Restore(c.Request().Context(), id, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) TrackAccess(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	h.svc.TrackAccess(c.Request().Context(), id)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListMatches(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	matches, err := h.merges.ListMatches(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, matches)
}

func (h *Handler) ConfirmMatch(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	match, err := h.merges.ConfirmMatch(c.Request().Context(), id, actor(c))
	h.track("match_confirm", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, match)
}

func (h *Handler) RejectMatch(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	match, err := h.merges.RejectMatch(c.Request().Context(), id, actor(c))
	h.track("match_reject", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, match)
}

func (h *Handler) Merge(c echo.Context) error {
	var body struct {
		MasterID    uuid.UUID `json:"master_id"`
		DuplicateID uuid.UUID `json:"duplicate_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	master, err := h.merges.Merge(c.Request().Context(), body.MasterID, body.DuplicateID, actor(c))
	h.track("identity_merge", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, master)
}

func (h *Handler) Link(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		MasterID uuid.UUID `json:"master_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	identity, err := h.merges.Link(c.Request().Context(), id, body.MasterID, actor(c))
	h.track("identity_link", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) Unlink(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	identity, err := h.merges.Unlink(c.Request().Context(), id, actor(c))
	h.track("identity_unlink", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, identity)
}

func (h *Handler) AddAlias(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req AliasRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	alias, err := h.svc.AddAlias(c.Request().Context(), id, &req, actor(c))
	h.track("alias_add", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, alias)
}

func (h *Handler) ListAliases(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	aliases, err := h.svc.ListAliases(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, aliases)
}

func (h *Handler) RemoveAlias(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	aliasID, err := pathID(c, "aliasId")
	if err != nil {
		return err
	}
	if err := h.svc.RemoveAlias(c.Request().Context(), id, aliasID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Sweep(c echo.Context) error {
	result, err := h.svc.DeduplicationSweep(c.Request().Context(), actor(c))
	h.track("dedup_sweep", err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}
