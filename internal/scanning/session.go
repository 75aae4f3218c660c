package scanning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	loopfsm "github.com/looplab/fsm"
)

const (
	stateIdle      = "idle"
	stateCapturing = "capturing"

	eventStart = "start"
	eventStop  = "stop"
)

var sessionEvents = []loopfsm.EventDesc{
	{Name: eventStart, Src: []string{stateIdle}, Dst: stateCapturing},
	{Name: eventStop, Src: []string{stateCapturing}, Dst: stateIdle},
}

// Session segments a stream of key events into tokens. A token is emitted
// when the terminator key arrives or when no key has arrived for the
// debounce window. At most one capture is active per Session.
//
// All state is guarded by mu, so Feed, Stop and timer fires may arrive from
// different goroutines. The token consumer runs while mu is held and must
// not call back into the same Session.
type Session struct {
	cfg    Config
	sched  Scheduler
	logger *slog.Logger

	mu      sync.Mutex
	machine *loopfsm.FSM
	buf     strings.Builder
	onToken func(string)
	timer   Timer
	// gen identifies the only timer allowed to flush; bumped on every cancel
	gen uint64
}

// NewSession creates an idle session. A nil scheduler uses wall-clock
// timers and a nil logger uses slog.Default().
func NewSession(cfg Config, sched Scheduler, logger *slog.Logger) *Session {
	if sched == nil {
		sched = wallScheduler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:    cfg.withDefaults(),
		sched:  sched,
		logger: logger,
	}
	s.machine = loopfsm.NewFSM(stateIdle, sessionEvents, loopfsm.Callbacks{
		"enter_" + stateCapturing: func(_ context.Context, e *loopfsm.Event) {
			if len(e.Args) > 0 {
				s.onToken, _ = e.Args[0].(func(string))
			}
		},
		"enter_" + stateIdle: func(_ context.Context, _ *loopfsm.Event) {
			s.cancelLocked()
			s.buf.Reset()
			s.onToken = nil
		},
	})
	return s
}

// Start begins capturing and delivers every token to onToken. Calling Start
// while already capturing does nothing: the original consumer and buffer
// stay in place.
func (s *Session) Start(onToken func(token string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionLocked(eventStart, onToken)
}

// Stop ends the capture, discarding any partial input. Once Stop returns no
// pending timer can deliver a token.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionLocked(eventStop)
}

func (s *Session) transitionLocked(event string, args ...interface{}) {
	err := s.machine.Event(context.Background(), event, args...)
	if err == nil {
		s.logger.Debug("scan session transition", "event", event, "state", s.machine.Current())
		return
	}
	var invalid loopfsm.InvalidEventError
	if errors.As(err, &invalid) {
		return
	}
	s.logger.Error("scan session transition failed", "event", event, "error", err)
}

// Active reports whether the session is capturing
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Is(stateCapturing)
}

// Buffered returns the number of bytes accumulated since the last flush
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Feed consumes one key event. Events are ignored while idle.
func (s *Session) Feed(ev KeyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.machine.Is(stateCapturing) {
		return
	}

	switch {
	case ev.Key == s.cfg.Terminator:
		s.cancelLocked()
		s.flushLocked("terminator")
	case utf8.RuneCountInString(ev.Key) == 1:
		s.buf.WriteString(ev.Key)
		s.armLocked()
	default:
		s.logger.Debug("ignoring key", "key", ev.Key)
	}
}

// Pump feeds events from src until it reports io.EOF or fails
func (s *Session) Pump(ctx context.Context, src KeySource) error {
	for {
		ev, err := src.ReadKey(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		s.Feed(ev)
	}
}

// armLocked replaces any pending timer with a fresh debounce timer
func (s *Session) armLocked() {
	s.cancelLocked()
	gen := s.gen
	s.timer = s.sched.AfterFunc(s.cfg.Debounce, func() {
		s.fire(gen)
	})
}

// cancelLocked stops the pending timer and invalidates it in case its
// callback is already running
func (s *Session) cancelLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || !s.machine.Is(stateCapturing) {
		return
	}
	s.timer = nil
	s.flushLocked("debounce")
}

func (s *Session) flushLocked(reason string) {
	if s.buf.Len() == 0 {
		return
	}
	token := s.buf.String()
	s.buf.Reset()
	s.logger.Debug("flushing scan token", "reason", reason, "length", len(token))
	if s.onToken != nil {
		s.onToken(token)
	}
}
