package main

import (
	"context"

	"github.com/trezcool/tutorias/core/user"
)

func (cli *commandLine) resetPassword(cedula, pwd string) error {
	return cli.usrSvc.ResetPassword(context.Background(), user.ResetUserPassword{Cedula: cedula, Password: pwd})
}
