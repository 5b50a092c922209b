package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	"github.com/toniiplaycode/DNC-Learning-sub001/apps/api/echo"
	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
	"github.com/toniiplaycode/DNC-Learning-sub001/services/email"
	"github.com/toniiplaycode/DNC-Learning-sub001/services/logger"
	"github.com/toniiplaycode/DNC-Learning-sub001/services/notify"
	"github.com/toniiplaycode/DNC-Learning-sub001/storage/database"
	"github.com/toniiplaycode/DNC-Learning-sub001/storage/database/sqlx"
)

func main() {
	stdLogger := log.New(os.Stdout, core.Conf.AppName+" ", log.LstdFlags|log.Lshortfile)
	appLogger := logsvc.NewRollbarLogger(stdLogger, core.Conf)

	if err := run(appLogger); err != nil {
		appLogger.Fatal("server startup failed", err)
	}
}

func run(appLogger core.Logger) error {
	// set up DB
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		return err
	}
	db, err := database.Open(core.Conf)
	if err != nil {
		return err
	}
	defer db.Close()
	if err = database.Migrate(db); err != nil {
		return err
	}
	xdb := sqlx.NewDb(db, "postgres")

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService(core.Conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(appLogger, core.Conf)
	}

	bus := core.NewEventBus()
	notifier := notifysvc.NewEmailNotifier(mailSvc, core.Conf.DefaultFromEmail)
	notifier.SubscribeTo(bus)

	attSvc := attendance.NewService(
		sqlxrepos.NewAttendanceRepository(xdb),
		sessionDirectory{repo: sqlxrepos.NewSessionRepository(xdb)},
		sqlxrepos.NewRosterRepository(xdb),
		bus,
		appLogger,
		core.Conf.Attendance,
	)
	sessSvc := session.NewService(sqlxrepos.NewSessionRepository(xdb), attSvc, bus)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Addr:          core.Conf.Server.Addr,
			SessionSvc:    sessSvc,
			AttendanceSvc: attSvc,
			Logger:        appLogger,
		},
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.Start()
	}()

	select {
	case err = <-serverErrors:
		return err
	case sig := <-shutdown:
		appLogger.Info("shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Server.ShutdownTimeout)
		defer cancel()
		return app.Stop(ctx)
	}
}

// sessionDirectory exposes session lookups to the attendance service without
// going through the lifecycle controller, which itself depends on the ledger.
type sessionDirectory struct {
	repo session.Repository
}

var _ attendance.SessionDirectory = (*sessionDirectory)(nil)

func (d sessionDirectory) GetByID(ctx context.Context, id string) (session.Session, error) {
	return d.repo.GetSessionByID(ctx, id)
}
