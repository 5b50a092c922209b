package main

import (
	"context"
	"fmt"

	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
)

// finalizeDue closes out every session whose window has elapsed but whose
// status is not yet terminal; meant to run from a scheduler as a safety net
// when nobody called the finalize endpoint.
func (cli *commandLine) finalizeDue() error {
	results, err := cli.sessSvc.FinalizeDue(context.Background())
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no due sessions")
		return nil
	}
	for id, res := range results {
		fmt.Printf("finalized %s: closed %d open record(s), marked %d absence(s)\n",
			id, len(res.ClosedRecords), len(res.SeededAbsences))
	}
	return nil
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
