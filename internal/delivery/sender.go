// Package delivery sends approved drafts within the configured daily and
// monthly quotas.
package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/pkg/resend"
)

// ErrQuotaExhausted is returned when a send would exceed the daily or
// monthly quota. It is never retried within a run.
var ErrQuotaExhausted = eris.New("delivery: quota exhausted")

// ErrNoFooter is returned for drafts missing the compliance footer.
var ErrNoFooter = eris.New("delivery: draft has no compliance footer")

// Sender delivers a draft to one recipient.
type Sender interface {
	Send(ctx context.Context, draft *model.Draft, recipient string) (*model.SendReceipt, error)
	Name() string
}

// IsQuotaExhausted reports whether err is a quota refusal.
func IsQuotaExhausted(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}

// QuotaSender enforces quotas and a minimum delay between sends in front of
// another Sender. Quota windows are UTC calendar days and months.
type QuotaSender struct {
	next    Sender
	daily   int
	monthly int
	pacer   *rate.Limiter
	policy  *resilience.Policy
	now     func() time.Time

	mu         sync.Mutex
	day        string
	month      string
	dayCount   int
	monthCount int
}

// NewQuotaSender wraps next. A quota <= 0 is unlimited; delay <= 0 disables
// pacing.
func NewQuotaSender(next Sender, daily, monthly int, delay time.Duration) *QuotaSender {
	q := &QuotaSender{next: next, daily: daily, monthly: monthly, now: time.Now}
	if delay > 0 {
		q.pacer = rate.NewLimiter(rate.Every(delay), 1)
	}
	return q
}

// WithPolicy wraps each call to the underlying sender in p, retrying
// transient failures. Pacing and quota checks stay outside the retry loop.
func (q *QuotaSender) WithPolicy(p *resilience.Policy) *QuotaSender {
	q.policy = p.For("send").RetryOn(resilience.IsTransient)
	return q
}

// Name implements Sender.
func (q *QuotaSender) Name() string { return q.next.Name() }

// Restore seeds the counters with sends already made in the current day and
// month, typically loaded from the store at startup.
func (q *QuotaSender) Restore(sentToday, sentThisMonth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll()
	q.dayCount = sentToday
	q.monthCount = sentThisMonth
}

// Remaining returns the sends left in the current day and month. -1 means
// unlimited.
func (q *QuotaSender) Remaining() (int, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll()
	day, month := -1, -1
	if q.daily > 0 {
		day = max(0, q.daily-q.dayCount)
	}
	if q.monthly > 0 {
		month = max(0, q.monthly-q.monthCount)
	}
	return day, month
}

// Send implements Sender. The quota slot is reserved before the call and
// released if the call fails.
func (q *QuotaSender) Send(ctx context.Context, draft *model.Draft, recipient string) (*model.SendReceipt, error) {
	if !draft.HasFooter() {
		return nil, resilience.NewPermanentError(ErrNoFooter, model.ReasonDraftFailed)
	}
	if err := q.reserve(); err != nil {
		return nil, err
	}

	if q.pacer != nil {
		if err := q.pacer.Wait(ctx); err != nil {
			q.release()
			return nil, eris.Wrap(err, "delivery: pacing wait")
		}
	}

	var receipt *model.SendReceipt
	var err error
	if q.policy != nil {
		receipt, err = resilience.Call(ctx, q.policy, "send", func(ctx context.Context) (*model.SendReceipt, error) {
			return q.next.Send(ctx, draft, recipient)
		})
	} else {
		receipt, err = q.next.Send(ctx, draft, recipient)
	}
	if err != nil {
		q.release()
		return nil, err
	}
	return receipt, nil
}

func (q *QuotaSender) reserve() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll()
	if q.daily > 0 && q.dayCount >= q.daily {
		return eris.Wrapf(ErrQuotaExhausted, "daily quota of %d reached", q.daily)
	}
	if q.monthly > 0 && q.monthCount >= q.monthly {
		return eris.Wrapf(ErrQuotaExhausted, "monthly quota of %d reached", q.monthly)
	}
	q.dayCount++
	q.monthCount++
	return nil
}

func (q *QuotaSender) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dayCount = max(0, q.dayCount-1)
	q.monthCount = max(0, q.monthCount-1)
}

// roll resets counters when the UTC day or month changes. Callers hold mu.
func (q *QuotaSender) roll() {
	now := q.now().UTC()
	day, month := now.Format("2006-01-02"), now.Format("2006-01")
	if month != q.month {
		q.month = month
		q.monthCount = 0
	}
	if day != q.day {
		q.day = day
		q.dayCount = 0
	}
}

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client resend.Client
	from   string
	email  string
	now    func() time.Time
}

// NewResendSender creates a ResendSender. name and email form the From header.
func NewResendSender(client resend.Client, name, email string) *ResendSender {
	from := email
	if strings.TrimSpace(name) != "" {
		from = name + " <" + email + ">"
	}
	return &ResendSender{client: client, from: from, email: email, now: time.Now}
}

// Name implements Sender.
func (s *ResendSender) Name() string { return "resend" }

// Send implements Sender. HTTP failures are classified as transient or
// permanent by status code.
func (s *ResendSender) Send(ctx context.Context, draft *model.Draft, recipient string) (*model.SendReceipt, error) {
	resp, err := s.client.SendEmail(ctx, resend.SendRequest{
		From:    s.from,
		To:      []string{recipient},
		Subject: draft.Subject,
		Text:    draft.Text(),
		ReplyTo: s.email,
		Headers: map[string]string{
			"List-Unsubscribe": "<mailto:" + s.email + "?subject=Unsubscribe>",
		},
		Tags: []resend.Tag{
			{Name: "strategy", Value: string(draft.Strategy)},
			{Name: "tone", Value: string(draft.Tone)},
		},
	})
	if err != nil {
		var se *resend.StatusError
		if errors.As(err, &se) {
			return nil, resilience.ClassifyHTTPStatus(err, se.StatusCode)
		}
		return nil, err
	}
	return &model.SendReceipt{
		MessageID: resp.ID,
		Recipient: recipient,
		Provider:  s.Name(),
		SentAt:    s.now().UTC(),
	}, nil
}

// LogSender is a dry-run Sender that only logs the message.
type LogSender struct {
	now func() time.Time
}

// NewLogSender creates a LogSender.
func NewLogSender() *LogSender {
	return &LogSender{now: time.Now}
}

// Name implements Sender.
func (s *LogSender) Name() string { return "log" }

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, draft *model.Draft, recipient string) (*model.SendReceipt, error) {
	id := "dry-run-" + uuid.NewString()
	zap.L().Info("delivery: dry-run send",
		zap.String("message_id", id),
		zap.String("recipient", recipient),
		zap.String("subject", draft.Subject),
		zap.Int("chars", len(draft.Text())),
	)
	return &model.SendReceipt{
		MessageID: id,
		Recipient: recipient,
		Provider:  s.Name(),
		SentAt:    s.now().UTC(),
	}, nil
}
