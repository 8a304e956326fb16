package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core/tutor"
)

type tutorApi struct {
	svc tutor.ServiceInterface
}

func registerTutorAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := tutorApi{svc: deps.TutorSvc}

	g.GET("/tutor/details", api.details, jwt)

	tg := g.Group("/tutors", jwt)
	tg.GET("", api.query)
	tg.POST("", api.create)

	// detail endpoints
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update)
	tg.DELETE("/:id", api.destroy)
	tg.POST("/:id/courses", api.addCourse)
	tg.POST("/:id/reviews", api.addReview)
}

func (api *tutorApi) query(ctx echo.Context) error {
	tutors, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying tutors")
	}
	if tutors == nil {
		tutors = []tutor.Tutor{}
	}
	return ctx.JSON(http.StatusOK, tutors)
}

func (api *tutorApi) create(ctx echo.Context) error {
	var data tutor.NewTutor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTutor")
	}
	t, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating tutor")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *tutorApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	t, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding tutor")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tutorApi) details(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.QueryParam("id"))
	if err != nil || id <= 0 {
		return errHttpNotFound
	}
	d, err := api.svc.Details(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting tutor details")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *tutorApi) update(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data tutor.UpdateTutor
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTutor")
	}
	t, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating tutor")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tutorApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting tutor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *tutorApi) addCourse(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data tutor.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	c, err := api.svc.AddCourse(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "adding course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *tutorApi) addReview(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data tutor.NewReview
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReview")
	}
	r, err := api.svc.AddReview(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "adding review")
	}
	return ctx.JSON(http.StatusCreated, r)
}
