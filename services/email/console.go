package emailsvc

import (
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
)

var (
	// SentMessages collects everything "sent"; tests assert on it.
	SentMessages = make([]core.EmailMessage, 0)
	mu           sync.Mutex
)

// consoleService writes emails to stdout; the DEV & TEST stand-in for
// sendgrid.
type consoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	disableOutput    bool
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config) core.EmailService {
	return &consoleService{
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
	}
}

// NewConsoleServiceMock sends synchronously and silently; for tests.
func NewConsoleServiceMock(conf *core.Config) core.EmailService {
	return &consoleService{
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
		disableOutput:    true,
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(); err != nil {
		log.Printf("%+v", errors.Wrap(err, "rendering email"))
		return
	}
	if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
		svc.send(*msg)
		mu.Lock()
		SentMessages = append(SentMessages, *msg)
		mu.Unlock()
	}
}

func (svc consoleService) send(msg core.EmailMessage) {
	if svc.disableOutput {
		return
	}

	body := new(strings.Builder)
	body.WriteString(fmt.Sprintf("From: %s\n", svc.defaultFromEmail.String()))
	body.WriteString(fmt.Sprintf("To: %s\n", joinAddresses(msg.To)))
	if len(msg.Cc) > 0 {
		body.WriteString(fmt.Sprintf("Cc: %s\n", joinAddresses(msg.Cc)))
	}
	body.WriteString(fmt.Sprintf("Subject: %s\n", svc.subjPrefix+msg.Subject))
	body.WriteString(fmt.Sprintf("Date: %s\n\n", time.Now().Format(time.RFC1123Z)))
	body.WriteString(msg.TextContent)
	body.WriteString("\n")
	fmt.Println(body.String())
}

// SentCount reports the sent-box size; safe to poll while handlers are
// still sending on their own goroutines.
func SentCount() int {
	mu.Lock()
	defer mu.Unlock()
	return len(SentMessages)
}

// Sent returns a snapshot of the sent box.
func Sent() []core.EmailMessage {
	mu.Lock()
	defer mu.Unlock()
	out := make([]core.EmailMessage, len(SentMessages))
	copy(out, SentMessages)
	return out
}

// ClearSentMessages resets the sent box between tests.
func ClearSentMessages() {
	mu.Lock()
	SentMessages = SentMessages[:0]
	mu.Unlock()
}

func joinAddresses(addrs []mail.Address) string {
	strs := make([]string, 0, len(addrs))
	for _, a := range addrs {
		strs = append(strs, a.String())
	}
	return strings.Join(strs, ", ")
}
