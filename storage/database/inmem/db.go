package inmemdb

import (
	"sync"

	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
)

// In-memory storage backing tests and local development; same repository
// contracts as the Postgres implementations.
type (
	DB struct {
		sessions *sessionTable
		records  *recordTable
		roster   *rosterTable
	}

	sessionTable struct {
		sync.RWMutex
		table map[string]*session.Session
	}

	recordTable struct {
		sync.RWMutex
		table map[string]*attendance.Record
		order []string // insertion order; breaks created-at ties
	}

	rosterTable struct {
		sync.RWMutex
		table map[string][]string // sessionID -> participantIDs
	}
)

func Open() (*DB, error) {
	db := &DB{
		sessions: &sessionTable{table: make(map[string]*session.Session)},
		records:  &recordTable{table: make(map[string]*attendance.Record)},
		roster:   &rosterTable{table: make(map[string][]string)},
	}
	return db, nil
}
