package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core/user"
)

// addUser creates an active user.User, or resets the password of the one already owning cedula.
func (cli *commandLine) addUser(cedula, nombre, pwd string, isAdmin bool) error {
	ctx := context.Background()

	if _, err := cli.usrSvc.GetByCedula(ctx, cedula); err == nil {
		return cli.resetPassword(cedula, pwd)
	} else if errors.Cause(err) != user.ErrNotFound {
		return err
	}

	role := user.RoleUser
	if isAdmin {
		role = user.RoleAdmin
	}
	status := user.StatusActive
	_, err := cli.usrSvc.Register(ctx, user.NewUser{
		Nombre:   nombre,
		Cedula:   cedula,
		Password: pwd,
		Role:     role,
		Status:   &status,
	})
	return err
}
