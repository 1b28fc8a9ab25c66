// File: facade/facade.go
// Package facade makes a single WebSocket connection safely operable from a
// different execution context than the one running its I/O.
//
// Each Facade owns one worker goroutine and one Protocol Engine instance
// bound to it. Callers enqueue commands (open, close, send) that the worker
// executes in FIFO order against the engine; engine events travel back
// through an ordered event queue and a dispatcher goroutine that invokes the
// caller's callbacks. No engine reference ever escapes into the caller's
// context, so the caller sees no locking at all.
package facade

import (
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/netgrove/threadws/api"
	"github.com/netgrove/threadws/engine"
	"github.com/netgrove/threadws/internal/concurrency"
)

// Listener carries the caller-side event callbacks. Any field may be nil.
// Callbacks are invoked from the facade's dispatcher goroutine, one at a
// time, in engine emission order.
type Listener struct {
	Connected      func()
	Disconnected   func()
	StateChanged   func(api.ConnState)
	TextReceived   func(msg string)
	BinaryReceived func(data []byte)
	ErrorOccurred  func(desc string)
}

// Option customizes facade construction.
type Option func(*Facade)

// WithEngineFactory overrides the default gorilla-backed engine. The factory
// runs on the worker goroutine so the engine is born on its owning context.
func WithEngineFactory(factory api.EngineFactory) Option {
	return func(f *Facade) {
		f.factory = factory
	}
}

// WithLogger attaches a logger for lifecycle diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Facade) {
		f.log = log
	}
}

// Facade is the thread-isolation wrapper around one Protocol Engine.
type Facade struct {
	factory api.EngineFactory
	log     zerolog.Logger

	commands *concurrency.Mailbox[command]
	events   *concurrency.Mailbox[event]

	listener Listener

	state atomic.Int32 // api.ConnState

	mu       sync.Mutex
	errDesc  string
	url      string
	active   bool
	shutdown bool

	workerDone   chan struct{}
	dispatchDone chan struct{}
	closeOnce    sync.Once
}

// New constructs a Facade and starts its worker and dispatcher goroutines.
// The engine stays idle until the first Open command.
func New(listener Listener, opts ...Option) *Facade {
	f := &Facade{
		factory:      engine.NewDialer,
		log:          zerolog.Nop(),
		commands:     concurrency.NewMailbox[command](),
		events:       concurrency.NewMailbox[event](),
		listener:     listener,
		workerDone:   make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	f.state.Store(int32(api.Closed))
	for _, o := range opts {
		o(f)
	}
	go f.worker()
	go f.dispatcher()
	return f
}

// Open enqueues an Open command for url. Completion is observed through a
// later StateChanged callback. Opening while already open is a forced
// reconnect: the engine closes the current connection and redials.
func (f *Facade) Open(rawURL string) {
	f.mu.Lock()
	f.url = rawURL
	f.mu.Unlock()
	f.commands.Put(command{kind: cmdOpen, url: rawURL})
}

// Close enqueues a Close command with the given code and reason.
func (f *Facade) Close(code api.CloseCode, reason string) {
	f.commands.Put(command{kind: cmdClose, code: code, reason: reason})
}

// SendText queues a text message for transmission. If the connection is not
// open the send fails immediately, the state transitions to Error and the
// engine is never contacted. The transmitted byte count is not obtainable
// synchronously; actual transmission happens on the worker goroutine.
func (f *Facade) SendText(msg string) error {
	if err := f.checkSend(); err != nil {
		return err
	}
	f.commands.Put(command{kind: cmdSendText, text: msg})
	return nil
}

// SendBinary queues a binary message, with the same semantics as SendText.
func (f *Facade) SendBinary(data []byte) error {
	if err := f.checkSend(); err != nil {
		return err
	}
	f.commands.Put(command{kind: cmdSendBinary, data: data})
	return nil
}

// checkSend enforces the fast-fail send precondition: sends are rejected at
// the boundary rather than queued against a dead connection.
func (f *Facade) checkSend() error {
	f.mu.Lock()
	down := f.shutdown
	f.mu.Unlock()
	if down {
		return api.ErrFacadeClosed
	}
	if f.State() != api.Open {
		f.state.Store(int32(api.Error))
		f.setErrDesc(api.ErrNotOpen.Error())
		f.events.Put(event{kind: evSendRejected, desc: api.ErrNotOpen.Error()})
		return api.ErrNotOpen
	}
	return nil
}

// State reports the externally observed connection state.
func (f *Facade) State() api.ConnState {
	return api.ConnState(f.state.Load())
}

// ErrorString returns the description of the last error, or the empty string
// if the state has left Error since.
func (f *Facade) ErrorString() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errDesc
}

// RequestURL returns the url passed to the most recent Open.
func (f *Facade) RequestURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// SetURL validates and records the target url. Scheme must be ws or wss.
// When the facade is active, setting a url (re)opens the connection to it.
func (f *Facade) SetURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return api.ErrBadScheme
	}
	f.mu.Lock()
	f.url = rawURL
	active := f.active
	f.mu.Unlock()
	if active {
		f.Open(rawURL)
	}
	return nil
}

// SetActive toggles the connection: activating opens the recorded url,
// deactivating closes with a normal closure.
func (f *Facade) SetActive(active bool) {
	f.mu.Lock()
	if f.active == active {
		f.mu.Unlock()
		return
	}
	f.active = active
	target := f.url
	f.mu.Unlock()

	if active && target != "" {
		f.Open(target)
	} else if !active {
		f.Close(api.CloseNormal, "")
	}
}

// Active reports the toggle state.
func (f *Facade) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Shutdown tears the facade down: command intake stops, the worker releases
// the engine and exits, queued events drain, and both goroutines are joined
// before Shutdown returns. No callback fires afterwards. Idempotent.
func (f *Facade) Shutdown() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.shutdown = true
		f.mu.Unlock()
		f.commands.Close()
		<-f.workerDone
		f.events.Close()
		<-f.dispatchDone
		f.log.Debug().Msg("facade shut down")
	})
}

// worker owns the engine exclusively: it constructs it, executes queued
// commands against it in FIFO order and releases it on exit.
func (f *Facade) worker() {
	defer close(f.workerDone)
	eng := f.factory(f.engineEvents())
	for {
		cmd, ok := f.commands.Get()
		if !ok {
			break
		}
		switch cmd.kind {
		case cmdOpen:
			eng.Open(cmd.url)
		case cmdClose:
			eng.Close(cmd.code, cmd.reason)
		case cmdSendText:
			if _, err := eng.SendText(cmd.text); err != nil {
				f.log.Debug().Err(err).Msg("deferred text send failed")
			}
		case cmdSendBinary:
			if _, err := eng.SendBinary(cmd.data); err != nil {
				f.log.Debug().Err(err).Msg("deferred binary send failed")
			}
		}
	}
	if eng.State() == api.SocketConnected || eng.State() == api.SocketClosing {
		eng.Close(api.CloseGoingAway, "facade shutting down")
	}
}

// engineEvents bridges engine callbacks into the event queue. The queue's
// single mutex gives the events a total order matching emission order.
func (f *Facade) engineEvents() *api.EngineEvents {
	return &api.EngineEvents{
		Connected: func() {
			f.events.Put(event{kind: evConnected})
		},
		Disconnected: func() {
			f.events.Put(event{kind: evDisconnected})
		},
		StateChanged: func(s api.SocketState) {
			f.events.Put(event{kind: evStateChanged, state: s})
		},
		TextMessage: func(msg string) {
			f.events.Put(event{kind: evTextReceived, text: msg})
		},
		BinaryMessage: func(data []byte) {
			f.events.Put(event{kind: evBinaryReceived, data: data})
		},
		Error: func(code api.SocketError, desc string) {
			f.events.Put(event{kind: evError, code: code, desc: desc})
		},
	}
}

// dispatcher delivers events to the caller's callbacks in FIFO order.
func (f *Facade) dispatcher() {
	defer close(f.dispatchDone)
	for {
		ev, ok := f.events.Get()
		if !ok {
			return
		}
		f.deliver(ev)
	}
}

func (f *Facade) deliver(ev event) {
	switch ev.kind {
	case evConnected:
		if f.listener.Connected != nil {
			f.listener.Connected()
		}
	case evDisconnected:
		if f.listener.Disconnected != nil {
			f.listener.Disconnected()
		}
	case evStateChanged:
		f.applyState(api.TranslateState(ev.state), "")
	case evTextReceived:
		if f.listener.TextReceived != nil {
			f.listener.TextReceived(ev.text)
		}
	case evBinaryReceived:
		if f.listener.BinaryReceived != nil {
			f.listener.BinaryReceived(ev.data)
		}
	case evError:
		f.applyState(api.Error, ev.desc)
		if f.listener.ErrorOccurred != nil {
			f.listener.ErrorOccurred(ev.desc)
		}
	case evSendRejected:
		// the state was already forced to Error synchronously; replay the
		// transition through the same path engine errors take
		f.applyState(api.Error, ev.desc)
		if f.listener.ErrorOccurred != nil {
			f.listener.ErrorOccurred(ev.desc)
		}
	}
}

// applyState records the externally observed state and relays it verbatim.
// Entering any non-Error state clears the recorded error description;
// entering Error sets it.
func (f *Facade) applyState(s api.ConnState, desc string) {
	f.state.Store(int32(s))
	if s == api.Error {
		if desc == "" {
			desc = api.ErrCodeUnknown.String()
		}
		f.setErrDesc(desc)
	} else {
		f.setErrDesc("")
	}
	if f.listener.StateChanged != nil {
		f.listener.StateChanged(s)
	}
}

func (f *Facade) setErrDesc(desc string) {
	f.mu.Lock()
	f.errDesc = desc
	f.mu.Unlock()
}
