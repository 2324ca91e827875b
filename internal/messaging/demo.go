package messaging

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/stylebook/salon-reminders/pkg/logging"
)

// SentMessage is a message captured by the DemoNotifier.
type SentMessage struct {
	ID     string    `json:"message_id"`
	To     string    `json:"to"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// DemoNotifier logs messages instead of sending them. It is used when no SMS
// provider credentials are configured.
type DemoNotifier struct {
	logger *logging.Logger
	now    func() time.Time

	mu   sync.Mutex
	sent []SentMessage
	max  int
}

func NewDemoNotifier(logger *logging.Logger) *DemoNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &DemoNotifier{logger: logger, now: time.Now, max: 200}
}

var _ Notifier = (*DemoNotifier)(nil)

func (d *DemoNotifier) Send(ctx context.Context, to, body string) (string, error) {
	if err := validateMessage(to, body); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := d.now()

	d.mu.Lock()
	id := "demo_msg_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + strconv.Itoa(len(d.sent)+1)
	d.sent = append(d.sent, SentMessage{ID: id, To: to, Body: body, SentAt: now})
	if len(d.sent) > d.max {
		d.sent = d.sent[len(d.sent)-d.max:]
	}
	d.mu.Unlock()

	d.logger.Info("demo sms (not sent)", "to", maskPhone(to), "message_id", id, "body", body)
	return id, nil
}

// Sent returns a copy of the captured messages, oldest first.
func (d *DemoNotifier) Sent() []SentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SentMessage, len(d.sent))
	copy(out, d.sent)
	return out
}
