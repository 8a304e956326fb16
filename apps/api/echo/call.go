package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/call"
)

type callApi struct {
	conf  *core.Config
	relay call.RelayInterface
}

func registerCallAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := callApi{conf: deps.Conf, relay: deps.Relay}

	cg := g.Group("/call")
	cg.GET("/user/:userId", api.participant)
	cg.GET("/ice-servers", api.iceServers)
	cg.GET("/attempts", api.history, jwt)
}

func (api *callApi) participant(ctx echo.Context) error {
	id, err := paramID(ctx, "userId")
	if err != nil {
		return err
	}
	p, err := api.relay.Participant(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding participant")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *callApi) iceServers(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, call.ICEServers(api.conf.Signaling.ICEURLs))
}

// history lists the call log of ?user_id, the caller's own by default. Only admins see other logs.
func (api *callApi) history(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	userID := claims.UserID()
	if q := ctx.QueryParam("user_id"); q != "" {
		if userID, err = strconv.Atoi(q); err != nil || userID <= 0 {
			return errHttpNotFound
		}
	}
	if userID != claims.UserID() && !claims.IsAdmin() {
		return errHttpForbidden
	}

	attempts, err := api.relay.History(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "querying call attempts")
	}
	if attempts == nil {
		attempts = []call.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}
