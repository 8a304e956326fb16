package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core/registration"
)

type registrationApi struct {
	svc registration.ServiceInterface
}

func registerRegistrationAPI(app *echo.Echo, deps ServerDeps) {
	api := registrationApi{svc: deps.RegistrationSvc}

	app.POST("/formularioVA", api.submit)
	app.GET("/formularioVA", api.forest)
}

func (api *registrationApi) submit(ctx echo.Context) error {
	var data registration.NewForm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewForm")
	}

	res, err := api.svc.Submit(ctx.Request().Context(), data, ctx.RealIP())
	if err != nil {
		return errors.Wrap(err, "submitting form")
	}
	return ctx.JSON(http.StatusCreated, SubmitResponse{Success: true, Result: res})
}

func (api *registrationApi) forest(ctx echo.Context) error {
	forest, err := api.svc.Forest(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building registration forest")
	}
	return ctx.JSON(http.StatusOK, forest)
}

type SubmitResponse struct {
	Success bool `json:"success"`
	registration.Result
}
