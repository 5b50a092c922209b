package echoapi

import (
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")

	// domainHTTPErrors maps domain sentinel errors to their HTTP translation.
	domainHTTPErrors = map[error]*echo.HTTPError{
		session.ErrNotFound:              errHttpNotFound,
		attendance.ErrNotFound:           errHttpNotFound,
		attendance.ErrSessionNotJoinable: echo.NewHTTPError(http.StatusConflict, attendance.ErrSessionNotJoinable.Error()),
		attendance.ErrNoOpenRecord:       echo.NewHTTPError(http.StatusConflict, attendance.ErrNoOpenRecord.Error()),
		session.ErrNotCancellable:        echo.NewHTTPError(http.StatusConflict, session.ErrNotCancellable.Error()),
		session.ErrStillOpen:             echo.NewHTTPError(http.StatusConflict, session.ErrStillOpen.Error()),
		session.ErrWindowLocked:          echo.NewHTTPError(http.StatusConflict, session.ErrWindowLocked.Error()),
		session.ErrHasAttendance:         echo.NewHTTPError(http.StatusConflict, session.ErrHasAttendance.Error()),
	}
)

func lookupDomainHTTPError(cause error) (*echo.HTTPError, bool) {
	if t := reflect.TypeOf(cause); t == nil || !t.Comparable() {
		return nil, false
	}
	herr, ok := domainHTTPErrors[cause]
	return herr, ok
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		// Map indexing panics on unhashable error types (e.g. the slice-typed
		// validator.ValidationErrors), so only consult the sentinel map for
		// comparable causes; everything else falls through to the type switch.
		cause := errors.Cause(err)
		if herr, ok := lookupDomainHTTPError(cause); ok {
			code = herr.Code
			message = herr.Message
		} else {
			switch origErr := errors.Cause(err).(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var sub string
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					sub = claims.Subject
				}
				logger.Error(msg, errors.Wrap(err, msg), sub)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
