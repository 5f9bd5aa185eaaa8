package reactions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emberbot/ember/dispatch/event"

	"github.com/puzpuzpuz/xsync/v3"
)

var DefaultInterval = 500 * time.Millisecond

// Pending reactions for a single message. Shared by every React call on that message while any is running.
type task struct {
	ctx    context.Context
	cancel context.CancelFunc
	active int
}

type Sequencer struct {
	Reactor  Reactor
	Resolver *Resolver
	// Delay between successive symbols of one React call
	Interval time.Duration
	Logger   *slog.Logger

	tasks *xsync.MapOf[string, *task]
	wg    sync.WaitGroup
}

func NewSequencer(reactor Reactor, resolver *Resolver, interval time.Duration, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = NewResolver(reactor, 100, 10*time.Minute)
	}
	return &Sequencer{
		Reactor:  reactor,
		Resolver: resolver,
		Interval: interval,
		Logger:   logger,
		tasks:    xsync.NewMapOf[string, *task](),
	}
}

// Schedules the symbols onto the message, in order, and returns immediately. Failures are logged per symbol and never affect the other symbols.
//
// The caller's context only contributes values (eg, trace spans); its cancellation does not stop the sequence. Use Cancel for that.
func (s *Sequencer) React(ctx context.Context, msg event.Message, symbols ...string) {
	if len(symbols) == 0 {
		return
	}
	t := s.acquire(ctx, msg.ID)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(msg.ID, t)
		s.run(t.ctx, msg, symbols)
	}()
}

// Stops any reactions not yet sent for the message. Returns false if nothing was pending.
func (s *Sequencer) Cancel(messageID string) bool {
	t, ok := s.tasks.LoadAndDelete(messageID)
	if !ok {
		return false
	}
	t.cancel()
	reactionSequencesCancelled.Inc()
	s.Logger.Debug("cancelled pending reactions", "message", messageID)
	return true
}

// Number of messages with reactions still pending.
func (s *Sequencer) Pending() int {
	return s.tasks.Size()
}

// Blocks until every scheduled send has completed or been cancelled.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

func (s *Sequencer) acquire(ctx context.Context, messageID string) *task {
	t, _ := s.tasks.Compute(messageID, func(old *task, loaded bool) (*task, bool) {
		if !loaded {
			tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			old = &task{ctx: tctx, cancel: cancel}
		}
		old.active++
		return old, false
	})
	return t
}

func (s *Sequencer) release(messageID string, t *task) {
	s.tasks.Compute(messageID, func(old *task, loaded bool) (*task, bool) {
		if !loaded {
			return old, true
		}
		if old != t {
			// cancelled earlier and replaced by a newer task
			return old, false
		}
		old.active--
		if old.active > 0 {
			return old, false
		}
		// every run sharing the task has finished its sends; this only frees the context
		old.cancel()
		return old, true
	})
}

// Sends each symbol at its scheduled offset, then waits for every issued send to finish, so the task is only released once nothing is in flight.
func (s *Sequencer) run(ctx context.Context, msg event.Message, symbols []string) {
	var inflight sync.WaitGroup
	defer inflight.Wait()

	start := time.Now()
	for i, sym := range symbols {
		if i > 0 {
			timer := time.NewTimer(time.Until(start.Add(time.Duration(i) * s.Interval)))
			select {
			case <-ctx.Done():
				timer.Stop()
				s.Logger.Debug("reaction sequence stopped", "message", msg.ID, "sent", i, "total", len(symbols))
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return
		}
		s.Logger.Debug("sending emoji", "message", msg.ID, "index", i+1, "total", len(symbols), "symbol", sym)
		inflight.Add(1)
		go func(sym string) {
			defer inflight.Done()
			if err := s.send(ctx, msg, sym); err != nil {
				reactionSendCount.WithLabelValues("error").Inc()
				s.Logger.Warn("reaction send failed", "message", msg.ID, "channel", msg.ChannelID, "err", err)
				return
			}
			reactionSendCount.WithLabelValues("ok").Inc()
		}(sym)
	}
}

func (s *Sequencer) send(ctx context.Context, msg event.Message, sym string) error {
	emoji, err := s.Resolver.Resolve(ctx, msg.GuildID, sym)
	if err != nil {
		// still try the generic form
		s.Logger.Warn("resolving custom emoji failed", "guild", msg.GuildID, "symbol", sym, "err", err)
	}
	if err := s.Reactor.AddReaction(ctx, msg.ChannelID, msg.ID, emoji); err != nil {
		return &SendError{Symbol: sym, Err: err}
	}
	return nil
}
