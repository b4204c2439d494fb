package router

import (
	"context"
	"hash/fnv"
	"runtime"
	"runtime/debug"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	kit "stockbot/internal/transport"
	"stockbot/internal/runtime/supervisor"
	logx "stockbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

const (
	replyUnauthorized = "You are not allowed to use this command."
	replyBusy         = "The bot is busy right now, please try again in a moment."
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	// Usage is shown in help, e.g. "/subscribe SYMBOL".
	Usage  string
	Access Access
	// RateLimited commands pass through the per-user cooldown gate.
	RateLimited bool
	Timeout     time.Duration
	Handle      HandlerFunc
}

// Request is one parsed inbound command.
type Request struct {
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	// UserID is FromID in decimal, the key used by subscription state.
	UserID  string
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	adapter kit.Adapter
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

type Options struct {
	// Workers is the number of command workers. Commands of one user always
	// land on the same worker, so they run in arrival order.
	Workers   int
	QueueSize int
	Limiter   Admitter
	Now       func() time.Time
}

type CommandManager struct {
	mu       sync.RWMutex
	commands map[string]*Command
	alias    map[string]*Command
	ordered  []Command
	owners   []int64

	log     logx.Logger
	adapter kit.Adapter
	opts    Options

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor
	shards  []chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64, opts Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = max(runtime.NumCPU(), 2)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CommandManager{
		commands: map[string]*Command{},
		alias:    map[string]*Command{},
		owners:   append([]int64(nil), owners...),
		log:      log,
		adapter:  adapter,
		opts:     opts,
	}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (m *CommandManager) Supervisor() *supervisor.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) ownersSnapshot() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.owners...)
}

// SetRegistry replaces the command set and, when the adapter supports it,
// republishes the Telegram command menu in the background.
func (m *CommandManager) SetRegistry(cmds []Command) {
	byName := make(map[string]*Command, len(cmds))
	alias := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
		ordered = append(ordered, cc)
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := byName[a]; !exists {
				alias[a] = &cc
			}
		}
	}

	m.mu.Lock()
	m.commands = byName
	m.alias = alias
	m.ordered = ordered
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenuCommands(ordered)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

// Commands returns the registered commands in registration order.
func (m *CommandManager) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.ordered)
}

func (m *CommandManager) lookup(word string) (*Command, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.commands[word]; ok {
		return c, true
	}
	c, ok := m.alias[word]
	return c, ok
}

// DispatchLoop reads updates until ctx ends or the channel closes, handing
// each command to its sender's worker.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := m.opts.Workers
	sup := supervisor.New(ctx,
		supervisor.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	shards := make([]chan func(), workers)
	for i := range shards {
		shards[i] = make(chan func(), m.opts.QueueSize)
	}
	m.runMu.Lock()
	m.sup, m.running, m.shards = sup, true, shards
	m.runMu.Unlock()

	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("queue_cap", m.opts.QueueSize))

	for i := range workers {
		jobs := shards[i]
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					m.runJob(i, job)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
		)
	}

	defer func() {
		m.runMu.Lock()
		m.running = false
		m.shards = nil
		m.runMu.Unlock()
		for _, ch := range shards {
			close(ch)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up, shards)
		}
	}
}

func (m *CommandManager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (m *CommandManager) route(ctx context.Context, up kit.Update, shards []chan func()) {
	msg := up.Message
	if msg == nil {
		return
	}
	word, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	cmd, ok := m.lookup(word)
	if !ok {
		m.log.Debug("unknown command ignored", logx.String("cmd", word), logx.Int64("from_id", msg.FromID))
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	if cmd.Access == AccessOwnerOnly && !slices.Contains(m.ownersSnapshot(), msg.FromID) {
		_, _ = m.adapter.SendText(ctx, chat, replyUnauthorized, nil)
		return
	}

	rid := newReqID()
	req := &Request{
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		UserID:       strconv.FormatInt(msg.FromID, 10),
		Command:      cmd.Name,
		Args:         args,
		ReqID:        rid,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		adapter: m.adapter,
	}

	mws := []Middleware{MWPanicRecover(m.log), MWRequestLog(m.log)}
	if cmd.RateLimited && m.opts.Limiter != nil {
		mws = append(mws, MWRateLimit(m.opts.Limiter, m.opts.Now))
	}
	mws = append(mws, MWTimeout(cmd.Timeout))
	final := Chain(cmd.Handle, mws...)

	if !tryEnqueue(shards[shardFor(msg.FromID, len(shards))], func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, replyBusy, nil)
	}
}

func tryEnqueue(ch chan func(), fn func()) bool {
	select {
	case ch <- fn:
		return true
	default:
		return false
	}
}

func shardFor(userID int64, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(userID, 10)))
	return int(h.Sum32() % uint32(n))
}

// commandNames lists names and aliases, sorted. Used by tests and logs.
func (m *CommandManager) commandNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.commands)+len(m.alias))
	for k := range m.commands {
		out = append(out, k)
	}
	for k := range m.alias {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
