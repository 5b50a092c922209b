package session

import (
	"testing"
	"time"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
)

func TestEffectiveStatus(t *testing.T) {
	start := time.Date(2021, 3, 15, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	sess := func(status Status) Session {
		return Session{StartTime: start, EndTime: end, Status: status}
	}

	tests := []struct {
		name string
		sess Session
		now  time.Time
		want Status
	}{
		{name: "before window", sess: sess(StatusScheduled), now: start.Add(-time.Minute), want: StatusScheduled},
		{name: "at start", sess: sess(StatusScheduled), now: start, want: StatusInProgress},
		{name: "inside window", sess: sess(StatusScheduled), now: start.Add(30 * time.Minute), want: StatusInProgress},
		{name: "at end", sess: sess(StatusScheduled), now: end, want: StatusInProgress},
		{name: "after window", sess: sess(StatusScheduled), now: end.Add(time.Second), want: StatusCompleted},
		{name: "stored in_progress before window", sess: sess(StatusInProgress), now: start.Add(-time.Minute), want: StatusScheduled},
		{name: "completed is sticky", sess: sess(StatusCompleted), now: start.Add(-time.Hour), want: StatusCompleted},
		{name: "cancelled is sticky", sess: sess(StatusCancelled), now: start.Add(30 * time.Minute), want: StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveStatus(tt.sess, tt.now); got != tt.want {
				t.Errorf("EffectiveStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusScheduled, false},
		{StatusInProgress, false},
		{StatusCompleted, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNewSession_Validate(t *testing.T) {
	start := time.Date(2021, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ns      NewSession
		wantErr bool
	}{
		{
			name:    "missing title",
			ns:      NewSession{StartTime: start, EndTime: start.Add(time.Hour)},
			wantErr: true,
		},
		{
			name:    "end before start",
			ns:      NewSession{Title: "Algebra II", StartTime: start, EndTime: start.Add(-time.Hour)},
			wantErr: true,
		},
		{
			name:    "end equals start",
			ns:      NewSession{Title: "Algebra II", StartTime: start, EndTime: start},
			wantErr: true,
		},
		{
			name:    "invalid recording url",
			ns:      NewSession{Title: "Algebra II", StartTime: start, EndTime: start.Add(time.Hour), RecordingURL: "lol"},
			wantErr: true,
		},
		{
			name: "valid",
			ns:   NewSession{Title: " Algebra II ", StartTime: start, EndTime: start.Add(time.Hour)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ns.Validate(core.Validate); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateSession_Validate(t *testing.T) {
	start := time.Date(2021, 3, 15, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	orig := Session{Title: "Algebra II", StartTime: start, EndTime: end, Status: StatusScheduled}
	tPtr := func(t time.Time) *time.Time { return &t }

	tests := []struct {
		name    string
		us      UpdateSession
		wantErr bool
	}{
		{
			name: "empty title falls back to original",
			us:   UpdateSession{},
		},
		{
			name:    "new start after kept end",
			us:      UpdateSession{Title: "Algebra II", StartTime: tPtr(end.Add(time.Minute))},
			wantErr: true,
		},
		{
			name:    "new end before kept start",
			us:      UpdateSession{Title: "Algebra II", EndTime: tPtr(start.Add(-time.Minute))},
			wantErr: true,
		},
		{
			name: "shifted window",
			us: UpdateSession{
				Title:     "Algebra II",
				StartTime: tPtr(start.Add(time.Hour)),
				EndTime:   tPtr(end.Add(time.Hour)),
			},
		},
		{
			name: "title only",
			us:   UpdateSession{Title: "Algebra III"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.us.Validate(core.Validate, orig); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
