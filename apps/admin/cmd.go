package main

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/presence"
	"github.com/trezcool/tutorias/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf    *core.Config
	db      migrator
	usrSvc  user.ServiceInterface
	tracker *presence.Tracker
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                        - run a goose command (up, down, status, redo, ...)")
	fmt.Println("  adduser --cedula CEDULA --nombre NOMBRE [--admin] - create or update an active user")
	fmt.Println("  resetpassword --cedula CEDULA                 - reset user's password")
	fmt.Println("  expirepresence [--ttl DURATION]               - mark silent sessions offline")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := pflag.NewFlagSet("adduser", pflag.ContinueOnError)
	addUserCedula := addUserCmd.String("cedula", "", "The user's cedula. The password will be prompted next.")
	addUserNombre := addUserCmd.String("nombre", "", "The user's full name.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the admin role.")

	resetPasswordCmd := pflag.NewFlagSet("resetpassword", pflag.ContinueOnError)
	resetPasswordCedula := resetPasswordCmd.String("cedula", "", "The user's cedula. The password will be prompted next.")

	expireCmd := pflag.NewFlagSet("expirepresence", pflag.ContinueOnError)
	expireTTL := expireCmd.Duration("ttl", cli.conf.Signaling.PresenceTTL, "Sessions silent for longer are marked offline.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserCedula == "" || *addUserNombre == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserCedula, *addUserNombre, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordCedula == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordCedula, pwd)

	case "expirepresence":
		if err := expireCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.expirePresence(*expireTTL)

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
