package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"stockbot/internal/dispatch"
	"stockbot/internal/quote"
	"stockbot/internal/storage"
	"stockbot/internal/subscription"
	"stockbot/internal/transport/telegram/router"
	logx "stockbot/pkg/logx"
)

func (s *Set) cmdStart(ctx context.Context, req *router.Request) error {
	s.deps.Store.GetOrCreate(ctx, req.UserID)
	return req.Reply(ctx, fmt.Sprintf(welcomeTemplate, s.helpBlock(), s.options().Cadence))
}

func (s *Set) cmdSubscribe(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, msgSubscribeUsage)
	}
	sym := subscription.NormalizeSymbol(req.Args[0])
	if !s.deps.Validator.Valid(ctx, sym) {
		return req.Reply(ctx, fmt.Sprintf(msgInvalidSymbol, sym))
	}
	added, err := s.deps.Store.Subscribe(ctx, req.UserID, sym)
	if err != nil {
		req.Logger.Warn("subscription not persisted", logx.String("symbol", sym), logx.Err(err))
	}
	if !added {
		return req.Reply(ctx, fmt.Sprintf(msgAlreadySub, sym))
	}
	return req.Reply(ctx, fmt.Sprintf(msgSubscribed, sym))
}

func (s *Set) cmdUnsubscribe(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, msgUnsubscribeUsage)
	}
	sym := subscription.NormalizeSymbol(req.Args[0])
	removed, err := s.deps.Store.Unsubscribe(ctx, req.UserID, sym)
	if err != nil {
		req.Logger.Warn("unsubscription not persisted", logx.String("symbol", sym), logx.Err(err))
	}
	if !removed {
		return req.Reply(ctx, fmt.Sprintf(msgNotSubscribed, sym))
	}
	return req.Reply(ctx, fmt.Sprintf(msgUnsubscribed, sym))
}

func (s *Set) cmdCheck(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 || strings.EqualFold(req.Args[0], "ALL") {
		symbols := s.deps.Store.Symbols(ctx, req.UserID)
		if len(symbols) == 0 {
			return req.Reply(ctx, msgNoSubscriptions)
		}
		snaps := s.deps.Quotes.GetMany(ctx, symbols)
		if len(snaps) == 0 {
			return req.Reply(ctx, msgNoDataAll)
		}
		return req.Reply(ctx, dispatch.FormatBatch(dispatch.OnDemand, snaps))
	}

	sym := subscription.NormalizeSymbol(req.Args[0])
	if !quote.ValidFormat(sym) {
		return req.Reply(ctx, fmt.Sprintf(msgNoData, sym))
	}
	snap, err := s.deps.Quotes.GetOne(ctx, sym)
	if err != nil {
		req.Logger.Debug("quote lookup failed", logx.String("symbol", sym), logx.Err(err))
		return req.Reply(ctx, fmt.Sprintf(msgNoData, sym))
	}
	return req.Reply(ctx, dispatch.FormatSnapshot(snap))
}

func (s *Set) cmdList(ctx context.Context, req *router.Request) error {
	symbols := s.deps.Store.Symbols(ctx, req.UserID)
	if len(symbols) == 0 {
		return req.Reply(ctx, msgNoSubscriptions)
	}
	var b strings.Builder
	b.WriteString(msgListHeader)
	for _, sym := range symbols {
		b.WriteString("• " + sym + "\n")
	}
	return req.Reply(ctx, b.String())
}

func (s *Set) cmdFrequency(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, msgFrequencyUsage)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(req.Args[0]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return req.Reply(ctx, msgFrequencyNumber)
	}
	if v != math.Trunc(v) {
		return req.Reply(ctx, msgFrequencyInteger)
	}
	if v < 1 || v > 24 {
		return req.Reply(ctx, msgFrequencyRange)
	}
	hours, err := s.deps.Store.SetInterval(ctx, req.UserID, int(v))
	if err != nil {
		req.Logger.Warn("frequency not persisted", logx.Int("hours", hours), logx.Err(err))
	}
	return req.Reply(ctx, fmt.Sprintf(msgFrequencySet, hours))
}

func (s *Set) cmdUpdateStocks(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, msgUpdateUsage)
	}
	symbols := make([]string, 0, len(req.Args))
	for _, a := range req.Args {
		if sym := subscription.NormalizeSymbol(a); sym != "" {
			symbols = append(symbols, sym)
		}
	}

	valid := make([]bool, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateWorkers)
	for i, sym := range symbols {
		g.Go(func() error {
			valid[i] = s.deps.Validator.Valid(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	var invalid []string
	for i, ok := range valid {
		if !ok {
			invalid = append(invalid, symbols[i])
		}
	}
	if len(invalid) > 0 {
		s.audit(ctx, req, symbols, fmt.Errorf("invalid symbols: %s", strings.Join(invalid, ", ")))
		return req.Reply(ctx, fmt.Sprintf(msgUpdateInvalid, strings.Join(invalid, ", ")))
	}

	err := s.deps.Store.ApplyNewDefaults(ctx, symbols)
	s.audit(ctx, req, symbols, err)
	if err != nil {
		req.Logger.Error("default symbols not persisted", logx.Err(err))
	}
	applied := s.deps.Store.Defaults().Symbols
	return req.Reply(ctx, fmt.Sprintf(msgUpdateDone, strings.Join(applied, ", ")))
}

func (s *Set) audit(ctx context.Context, req *router.Request, symbols []string, opErr error) {
	if s.deps.Audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"symbols": symbols, "rid": req.ReqID})
	e := storage.AuditEntry{
		At:            s.deps.Now().UTC(),
		ActorID:       req.FromID,
		ActorUsername: req.FromUsername,
		ChatID:        req.Chat.ChatID,
		Action:        "updatestocks",
		Target:        strings.Join(symbols, ","),
		OK:            opErr == nil,
		MetaJSON:      string(meta),
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	if err := s.deps.Audit.AppendAudit(ctx, e); err != nil {
		req.Logger.Warn("audit append failed", logx.Err(err))
	}
}
