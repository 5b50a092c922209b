package notifysvc

import (
	"fmt"
	"net/mail"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
)

// EmailNotifier bridges core events to the notification collaborator: it
// subscribes to the event bus and turns finalize/cancel facts into digest
// emails. The attendance core itself never calls it.
type EmailNotifier struct {
	mailSvc    core.EmailService
	recipients []mail.Address
}

func NewEmailNotifier(mailSvc core.EmailService, recipients ...mail.Address) *EmailNotifier {
	return &EmailNotifier{mailSvc: mailSvc, recipients: recipients}
}

// SubscribeTo wires the notifier into the bus.
func (n *EmailNotifier) SubscribeTo(bus *core.EventBus) {
	bus.Subscribe(core.EventSessionFinalized, n.onSessionFinalized)
	bus.Subscribe(core.EventSessionCancelled, n.onSessionCancelled)
}

func (n *EmailNotifier) onSessionFinalized(evt core.Event) {
	closed, _ := evt.Payload["closedRecords"].([]string)
	seeded, _ := evt.Payload["seededAbsences"].([]string)
	n.mailSvc.SendMessages(&core.EmailMessage{
		To:      n.recipients,
		Subject: "Session finalized",
		BodyStr: fmt.Sprintf(
			"Session %v finalized: %d open record(s) closed, %d absence(s) recorded.",
			evt.Payload["sessionId"], len(closed), len(seeded),
		),
	})
}

func (n *EmailNotifier) onSessionCancelled(evt core.Event) {
	closed, _ := evt.Payload["closedRecords"].([]string)
	n.mailSvc.SendMessages(&core.EmailMessage{
		To:      n.recipients,
		Subject: "Session cancelled",
		BodyStr: fmt.Sprintf(
			"Session %v was cancelled; %d open record(s) were closed.",
			evt.Payload["sessionId"], len(closed),
		),
	})
}
