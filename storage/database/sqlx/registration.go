package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/registration"
	"github.com/trezcool/tutorias/core/user"
)

const formColumns = "id, user_id, cedula, nombre, apellido, telefono, correo, direccion, provincia, municipio, sector, " +
	"colegio_electoral, ocupacion, genero, fecha_nacimiento, intereses, habilidades, disponibilidad, ip, fecha_envio"

type registrationRepository struct {
	db core.DB
}

var _ registration.Repository = (*registrationRepository)(nil)

func NewRegistrationRepository(db core.DB) *registrationRepository {
	return &registrationRepository{db: db}
}

func (repo *registrationRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx registration.Tx) error) error {
	return withinTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		return fn(ctx, registrationTx{tx: tx})
	})
}

func (repo *registrationRepository) QueryForms(ctx context.Context) ([]registration.Form, error) {
	forms := make([]registration.Form, 0)
	if err := sqlx.SelectContext(ctx, repo.db, &forms, "SELECT "+formColumns+" FROM formularios_va ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "querying forms")
	}
	return forms, nil
}

func (repo *registrationRepository) GetFormByCedula(ctx context.Context, cedula string) (registration.Form, error) {
	var f registration.Form
	err := repo.db.QueryRowxContext(ctx, "SELECT "+formColumns+" FROM formularios_va WHERE cedula = $1", cedula).StructScan(&f)
	if err != nil {
		return registration.Form{}, trapNoRowsErr(err, registration.ErrNotFound, "finding form")
	}
	return f, nil
}

type registrationTx struct {
	tx *sqlx.Tx
}

var _ registration.Tx = registrationTx{}

func (rtx registrationTx) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	return getUser(ctx, rtx.tx, filter)
}

func (rtx registrationTx) ActivateUser(ctx context.Context, id int) (user.User, error) {
	var usr user.User
	err := rtx.tx.QueryRowxContext(ctx,
		"UPDATE usersva SET status = $1 WHERE id = $2 RETURNING "+userColumns, user.StatusActive, id,
	).StructScan(&usr)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "activating user")
	}
	return usr, nil
}

func (rtx registrationTx) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	return insertUser(ctx, rtx.tx, usr)
}

func (rtx registrationTx) CreateForm(ctx context.Context, f registration.Form) (registration.Form, error) {
	q := `INSERT INTO formularios_va (user_id, cedula, nombre, apellido, telefono, correo, direccion, provincia,
			municipio, sector, colegio_electoral, ocupacion, genero, fecha_nacimiento, intereses, habilidades,
			disponibilidad, ip, fecha_envio)
		VALUES (:user_id, :cedula, :nombre, :apellido, :telefono, :correo, :direccion, :provincia,
			:municipio, :sector, :colegio_electoral, :ocupacion, :genero, :fecha_nacimiento, :intereses, :habilidades,
			:disponibilidad, :ip, :fecha_envio)
		RETURNING id`
	query, args, err := sqlx.Named(q, f)
	if err != nil {
		return registration.Form{}, errors.Wrap(err, "binding form")
	}
	if err = rtx.tx.QueryRowxContext(ctx, rtx.tx.Rebind(query), args...).Scan(&f.ID); err != nil {
		return registration.Form{}, trapDBErr(err, "inserting form")
	}
	return f, nil
}
