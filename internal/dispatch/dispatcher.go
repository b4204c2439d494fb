package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stockbot/internal/eventbus"
	"stockbot/internal/quote"
	"stockbot/internal/subscription"
	logx "stockbot/pkg/logx"
)

//go:generate mockgen -package=dispatch_test -destination=mock_deps_test.go -source=dispatcher.go UserStore QuoteFetcher Deliverer

const (
	EventCycle     = "dispatch.cycle"
	DefaultWorkers = 4
)

type UserStore interface {
	ListUsers() []string
	Lookup(userID string) (subscription.User, bool)
}

type QuoteFetcher interface {
	GetMany(ctx context.Context, symbols []string) map[string]quote.Snapshot
}

type Deliverer interface {
	Deliver(ctx context.Context, userID, text string) error
}

// CycleReport summarizes one dispatch cycle.
type CycleReport struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Users      int       `json:"users"`
	Sent       int       `json:"sent"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

type Dispatcher struct {
	users  UserStore
	quotes QuoteFetcher
	out    Deliverer
	bus    eventbus.Bus
	log    logx.Logger

	workers atomic.Int64

	mu      sync.Mutex
	last    CycleReport
	hasLast bool
}

func New(users UserStore, quotes QuoteFetcher, out Deliverer, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{users: users, quotes: quotes, out: out, bus: bus, log: log}
	d.workers.Store(DefaultWorkers)
	return d
}

// SetWorkers bounds per-cycle parallelism. Values below 1 restore the default.
func (d *Dispatcher) SetWorkers(n int) {
	if n < 1 {
		n = DefaultWorkers
	}
	d.workers.Store(int64(n))
}

// Last returns the most recent completed cycle.
func (d *Dispatcher) Last() (CycleReport, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hasLast
}

// RunCycle sends a scheduled update to every user with at least one
// quotable symbol. It returns after every user has been processed.
func (d *Dispatcher) RunCycle(ctx context.Context) CycleReport {
	rep := CycleReport{ID: uuid.NewString(), StartedAt: time.Now()}
	log := d.log.With(logx.String("cycle", rep.ID))

	ids := d.users.ListUsers()
	rep.Users = len(ids)

	var sent, skipped, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(int(d.workers.Load()))
	for _, id := range ids {
		g.Go(func() error {
			switch d.runUser(ctx, log, id) {
			case outcomeSent:
				sent.Add(1)
			case outcomeFailed:
				failed.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep.Sent, rep.Skipped, rep.Failed = int(sent.Load()), int(skipped.Load()), int(failed.Load())
	rep.FinishedAt = time.Now()

	d.mu.Lock()
	d.last, d.hasLast = rep, true
	d.mu.Unlock()
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: EventCycle, Time: rep.FinishedAt, Data: rep})
	}
	log.Info("dispatch cycle done",
		logx.Int("users", rep.Users),
		logx.Int("sent", rep.Sent),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", rep.FinishedAt.Sub(rep.StartedAt)),
	)
	return rep
}

func (d *Dispatcher) runUser(ctx context.Context, log logx.Logger, userID string) (res outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panicked for user",
				logx.String("user_id", userID),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
			res = outcomeFailed
		}
	}()
	if ctx.Err() != nil {
		return outcomeSkipped
	}

	u, ok := d.users.Lookup(userID)
	if !ok || len(u.Symbols) == 0 {
		return outcomeSkipped
	}
	snaps := d.quotes.GetMany(ctx, u.Symbols)
	if len(snaps) == 0 {
		log.Debug("no quotes for user", logx.String("user_id", userID), logx.Strs("symbols", u.Symbols))
		return outcomeSkipped
	}
	if err := d.out.Deliver(ctx, userID, FormatBatch(Scheduled, snaps)); err != nil {
		log.Warn("dispatch delivery failed", logx.String("user_id", userID), logx.Err(err))
		return outcomeFailed
	}
	return outcomeSent
}
