package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/user"
)

type userApi struct {
	conf     *core.Config
	svc      user.ServiceInterface
	validate *validator.Validate
}

func registerUserAPI(app *echo.Echo, g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := userApi{
		conf:     deps.Conf,
		svc:      deps.UserSvc,
		validate: deps.Validate,
	}

	// un-authed endpoints
	g.POST("/login", api.login)
	g.POST("/registerVA", api.register)
	app.POST("/userVA", api.lookup)

	// authed endpoints
	ug := g.Group("/users", jwt, adminMiddleware)
	ug.GET("", api.query)
	ug.DELETE("/:id", api.destroy)
	ug.PUT("/:id/registrar", api.setRegistrar)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data user.LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Cedula, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	if !usr.IsActive() {
		return errAccountDeactivated
	}
	token, err := GenerateToken(GetUserClaims(usr, api.conf), api.conf.SecretKey)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{
		Token:  token,
		ID:     usr.ID,
		Nombre: usr.Nombre,
		Role:   usr.Role,
	})
}

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusCreated, RegisterResponse{
		Success: true,
		Message: "Usuario registrado exitosamente",
		User:    usr,
	})
}

func (api *userApi) lookup(ctx echo.Context) error {
	var data user.LookupRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LookupRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.GetByCedula(ctx.Request().Context(), data.Cedula)
	if err != nil {
		return errors.Wrap(err, "finding user by cedula")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	users, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	// ctxUser cannot delete themselves
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.UserID() == id {
		return errHttpForbidden
	}

	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Usuario eliminado"})
}

func (api *userApi) setRegistrar(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	var data user.SetRegistrarRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetRegistrarRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	usr, err := api.svc.SetRegistrar(ctx.Request().Context(), id, data.RegistradoPor)
	if err != nil {
		return errors.Wrap(err, "setting registrar")
	}
	return ctx.JSON(http.StatusOK, usr)
}

type (
	LoginResponse struct {
		Token  string `json:"token"`
		ID     int    `json:"id"`
		Nombre string `json:"nombre"`
		Role   string `json:"role"`
	}

	RegisterResponse struct {
		Success bool      `json:"success"`
		Message string    `json:"message"`
		User    user.User `json:"user"`
	}

	SuccessResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
)
