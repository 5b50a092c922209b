package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
)

type attendanceApi struct {
	svc      *attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attendance.Service, validate *validator.Validate) {
	api := attendanceApi{
		svc:      svc,
		validate: validate,
	}

	ag := g.Group("/sessions/:id/attendance", jwt)

	// participant endpoints; the participant is the token subject
	ag.POST("/join", api.join)
	ag.POST("/leave", api.leave)

	// teacher endpoints
	ag.GET("", api.list, teacherMiddleware())
	ag.GET("/summary", api.sessionSummary, teacherMiddleware())
	ag.PUT("/:participantId", api.mark, teacherMiddleware())

	g.GET("/participants/:id/attendance-summary", api.participantSummary, jwt, selfOrTeacherMiddleware("id"))
}

// Handlers

func (api *attendanceApi) join(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	rec, err := api.svc.Join(ctx.Request().Context(), ctx.Param("id"), claims.Subject, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "joining session")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) leave(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	rec, err := api.svc.Leave(ctx.Request().Context(), ctx.Param("id"), claims.Subject, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "leaving session")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.MarkAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.MarkStatus(ctx.Request().Context(), ctx.Param("id"), ctx.Param("participantId"), data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) list(ctx echo.Context) error {
	filter := new(attendance.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []attendance.Record{})
	}
	filter.SessionID = ctx.Param("id")
	ordering := new(Ordering)
	ordering.Bind(ctx)

	recs, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying attendance records")
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *attendanceApi) sessionSummary(ctx echo.Context) error {
	summary, err := api.svc.SessionSummary(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "summarizing session attendance")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) participantSummary(ctx echo.Context) error {
	filter := new(attendance.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		filter = new(attendance.QueryFilter)
	}

	summary, err := api.svc.ParticipantSummary(ctx.Request().Context(), ctx.Param("id"), filter.SessionIDs...)
	if err != nil {
		return errors.Wrap(err, "summarizing participant attendance")
	}
	return ctx.JSON(http.StatusOK, summary)
}
