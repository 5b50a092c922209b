package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/toniiplaycode/DNC-Learning-sub001/apps"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db      *sql.DB
	sessSvc *session.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]  - run database migrations (up, down, status, ...)")
	fmt.Println("  finalizedue             - finalize all sessions whose window has elapsed")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "finalizedue":
		if len(args) > 2 {
			return apps.NewArgumentError(fmt.Sprintf("finalizedue takes no arguments (got %v)", args[2:]))
		}
		return cli.finalizeDue()
	default:
		cli.printUsage()
		return errHelp
	}
}
