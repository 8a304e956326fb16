package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/user"
)

const msgInvalidData = "datos inválidos"

// errorResponse is the body of every failed request. Error carries the raw error outside of production.
type errorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// describeError maps err to a status code and a client-facing response.
// Codes >= 500 mean that err is not meant for the client.
func describeError(err error, translator ut.Translator) (int, errorResponse) {
	switch origErr := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if origErr == middleware.ErrJWTMissing {
			return http.StatusUnauthorized, errorResponse{Message: fmt.Sprint(origErr.Message)}
		}
		if origErr.Internal != nil {
			if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
		}
		return origErr.Code, errorResponse{Message: fmt.Sprint(origErr.Message)}
	case validator.ValidationErrors:
		fldErrs := make(map[string]string, len(origErr))
		for _, vErr := range origErr {
			fldErrs[vErr.Field()] = vErr.Translate(translator)
		}
		return http.StatusBadRequest, errorResponse{Message: msgInvalidData, Fields: fldErrs}
	case *core.ValidationError:
		resp := errorResponse{Message: msgInvalidData}
		if origErr.Err != nil {
			resp.Message = origErr.Err.Error()
		}
		if origErr.Fields != nil {
			resp.Fields = make(map[string]string, len(origErr.Fields))
			for _, fErr := range origErr.Fields {
				resp.Fields[fErr.Field] = fErr.Error
			}
		}
		return http.StatusBadRequest, resp
	case *core.DuplicateKeyError:
		return http.StatusBadRequest, errorResponse{Message: origErr.Error()}
	case *core.NotFoundError:
		return http.StatusNotFound, errorResponse{Message: origErr.Error()}
	}
	if errors.Cause(err) == user.ErrInvalidCredentials {
		return http.StatusBadRequest, errorResponse{Message: user.ErrInvalidCredentials.Error()}
	}
	return http.StatusInternalServerError, errorResponse{Message: http.StatusText(http.StatusInternalServerError)}
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(
	conf *core.Config,
	logger core.Logger,
	translator ut.Translator,
	signalShutdown func(),
) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, resp := describeError(err, translator)

		if code >= http.StatusInternalServerError {
			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.UserID()
				usr.Nombre = claims.Nombre
			}
			logger.Error(resp.Message, errors.Wrap(err, resp.Message), map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Path(),
			}, usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}
		if !conf.IsProduction() {
			resp.Error = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
