package echoweb

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/apiclient"
	"github.com/trezcool/quizboard/core"
)

var errBadID = echo.NewHTTPError(http.StatusNotFound, "Not found")

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler rendering the error page.
// A 401 from the backend sends the visitor to the login page.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}

		var code int
		var message string

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = fmt.Sprint(origErr.Message)
		case *apiclient.APIError:
			if origErr.StatusCode == http.StatusUnauthorized {
				if rErr := ctx.Redirect(http.StatusFound, loginPath); rErr != nil {
					ctx.Echo().Logger.Error(rErr)
				}
				return
			}
			code = origErr.StatusCode
			if code >= http.StatusInternalServerError {
				code = http.StatusBadGateway
			}
			message = origErr.Message()
		case *apiclient.TransportError:
			code = http.StatusBadGateway
			message = apiclient.ErrorMessage(origErr)
			logger.Warn("backend unreachable", logArgs(ctx, err)...)
		case *core.ValidationError:
			code = http.StatusBadRequest
			message = origErr.Error()
		default: // any other error is a server error
			code = http.StatusInternalServerError
			message = http.StatusText(code)

			logger.Error(message, logArgs(ctx, errors.Wrap(err, message))...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}

		if ctx.Request().Method == http.MethodHead { // Issue #608
			err = ctx.NoContent(code)
		} else {
			err = ctx.Render(code, "error", newPage(ctx, http.StatusText(code), message))
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
