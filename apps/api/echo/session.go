package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
)

type sessionApi struct {
	svc      *session.Service
	validate *validator.Validate
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *session.Service, validate *validator.Validate) {
	api := sessionApi{
		svc:      svc,
		validate: validate,
	}

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.create, teacherMiddleware())
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, teacherMiddleware())
	sg.DELETE("/:id", api.destroy, adminMiddleware())
	sg.POST("/:id/cancel", api.cancel, teacherMiddleware())
	sg.POST("/:id/finalize", api.finalize, teacherMiddleware())
}

// sessionResponse decorates a session with the status a client should display
// right now, which may differ from the stored one until finalization runs.
type sessionResponse struct {
	session.Session
	EffectiveStatus session.Status `json:"effectiveStatus"`
}

func newSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{Session: s, EffectiveStatus: session.EffectiveStatus(s, time.Now().UTC())}
}

// Handlers

func (api *sessionApi) create(ctx echo.Context) error {
	var data session.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}

	return ctx.JSON(http.StatusCreated, newSessionResponse(s))
}

func (api *sessionApi) query(ctx echo.Context) error {
	filter := new(session.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []sessionResponse{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	sessions, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}

	res := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		res[i] = newSessionResponse(s)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding session by ID")
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(s))
}

func (api *sessionApi) update(ctx echo.Context) error {
	var data session.UpdateSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSession")
	}

	orig, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding session by ID")
	}
	if err := data.Validate(api.validate, orig); err != nil {
		return err
	}

	s, err := api.svc.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating session")
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(s))
}

func (api *sessionApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) cancel(ctx echo.Context) error {
	s, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling session")
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(s))
}

func (api *sessionApi) finalize(ctx echo.Context) error {
	res, err := api.svc.Finalize(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finalizing session")
	}
	return ctx.JSON(http.StatusOK, res)
}
