package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
	"github.com/toniiplaycode/DNC-Learning-sub001/services/email"
	"github.com/toniiplaycode/DNC-Learning-sub001/services/logger"
	"github.com/toniiplaycode/DNC-Learning-sub001/services/notify"
	"github.com/toniiplaycode/DNC-Learning-sub001/storage/database"
	"github.com/toniiplaycode/DNC-Learning-sub001/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	errAndDie(database.CreateIfNotExist(core.Conf))
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())
	xdb := sqlx.NewDb(db, "postgres")

	appLogger := logsvc.NewRollbarLogger(logger, core.Conf)

	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService(core.Conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(appLogger, core.Conf)
	}
	bus := core.NewEventBus()
	notifysvc.NewEmailNotifier(mailSvc, core.Conf.DefaultFromEmail).SubscribeTo(bus)

	sessRepo := sqlxrepos.NewSessionRepository(xdb)
	attSvc := attendance.NewService(
		sqlxrepos.NewAttendanceRepository(xdb),
		sessionDirectory{repo: sessRepo},
		sqlxrepos.NewRosterRepository(xdb),
		bus,
		appLogger,
		core.Conf.Attendance,
	)

	// start CLI
	cli := commandLine{
		db:      db,
		sessSvc: session.NewService(sessRepo, attSvc, bus),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
