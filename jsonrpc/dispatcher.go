package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestHandler handles a JSON-RPC request and returns a JSON-encodable
// result, or an error which becomes an InternalError response.
type RequestHandler func(params json.RawMessage) (any, error)

// NotificationHandler handles a JSON-RPC notification. Any returned error
// is counted in [Dispatcher.Stats] but never surfaces a response.
type NotificationHandler func(params json.RawMessage) error

// WriteFunc writes one complete JSON-RPC message. The [Dispatcher] calls it
// at most once per inbound message and once per [Dispatcher.SendNotification]
// call; framing (e.g. the Content-Length header) is the writer's concern.
type WriteFunc func(content []byte) error

// Dispatcher parses JSON-RPC 2.0 message bodies, routes them to registered
// handlers, and writes responses or error objects through a [WriteFunc]. It
// is transport-agnostic: callers hand it already-extracted message bodies,
// typically produced by a framer.Framer.
type Dispatcher struct {
	write WriteFunc

	mu       sync.Mutex
	requests map[string]RequestHandler
	notifs   map[string]NotificationHandler

	statsMu  sync.Mutex
	stats    map[string]int64
	statKeys []string // insertion order

	metrics *prometheus.CounterVec

	guard Guard
}

// Guard is consulted before a request is routed to its handler. A non-nil
// error short-circuits dispatch and is written as the response in its
// place, letting session wiring enforce protocol state (e.g. reject
// requests before initialize or after shutdown) without threading a state
// check through every handler. Notifications are never guarded, matching
// the spec's "unknown notification is silently dropped" policy.
type Guard func(method string) error

// New returns a Dispatcher that writes responses and server-initiated
// notifications through write.
func New(write WriteFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		write:    write,
		requests: make(map[string]RequestHandler),
		notifs:   make(map[string]NotificationHandler),
		stats:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Option configures a Dispatcher at construction.
type Option func(*Dispatcher)

// WithMetrics mirrors every statistics-map bump into vec, using the exact
// same label text the in-memory stats map uses. vec must have been
// registered with exactly one label. Passing a nil vec is a no-op.
func WithMetrics(vec *prometheus.CounterVec) Option {
	return func(d *Dispatcher) {
		d.metrics = vec
	}
}

// SetGuard installs g, replacing any previously installed guard. Passing
// nil disables guarding.
func (d *Dispatcher) SetGuard(g Guard) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.guard = g
}

// AddRequestHandler registers fn for request method name, overwriting any
// previous registration for the same name.
func (d *Dispatcher) AddRequestHandler(name string, fn RequestHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests[name] = fn
}

// AddNotificationHandler registers fn for notification method name,
// overwriting any previous registration for the same name.
func (d *Dispatcher) AddNotificationHandler(name string, fn NotificationHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifs[name] = fn
}

// RequestMethods returns the currently registered request method names, in
// no particular order. It lets session wiring derive server capabilities
// from whatever handlers application code has actually registered.
func (d *Dispatcher) RequestMethods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	methods := make([]string, 0, len(d.requests))
	for m := range d.requests {
		methods = append(methods, m)
	}
	return methods
}

// Stat is one (name, count) pair from the statistics map, in the order the
// name was first bumped.
type Stat struct {
	Name  string
	Count int64
}

// Stats returns a snapshot of the statistics map in insertion order.
func (d *Dispatcher) Stats() []Stat {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	out := make([]Stat, len(d.statKeys))
	for i, k := range d.statKeys {
		out[i] = Stat{Name: k, Count: d.stats[k]}
	}
	return out
}

func (d *Dispatcher) bump(key string) {
	d.statsMu.Lock()
	if _, ok := d.stats[key]; !ok {
		d.statKeys = append(d.statKeys, key)
	}
	d.stats[key]++
	d.statsMu.Unlock()

	if d.metrics != nil {
		d.metrics.WithLabelValues(key).Inc()
	}
}

// Dispatch parses body as a single JSON-RPC message and routes it. It
// returns an error only if writing a response or notification through the
// configured WriteFunc failed; all protocol-level problems (parse errors,
// missing methods, handler errors) are reported as JSON-RPC error objects
// per the spec and never surface as a Go error here.
func (d *Dispatcher) Dispatch(body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		d.bump(err.Error())
		return d.writeError(recoverID(body), ParseError, err.Error())
	}

	if msg.Method == "" {
		return d.handleMethodMissing(msg.ID)
	}

	isNotification := msg.ID == nil
	params := msg.Params
	if params == nil {
		raw := json.RawMessage("null")
		params = &raw
	}

	if isNotification {
		return d.dispatchNotification(msg.Method, *params)
	}
	return d.dispatchRequest(msg.Method, msg.ID, *params)
}

func (d *Dispatcher) handleMethodMissing(id *ID) error {
	d.bump("Request without method")
	return d.writeError(id, MethodNotFound, "Method required in request")
}

func (d *Dispatcher) dispatchNotification(method string, params json.RawMessage) error {
	d.mu.Lock()
	fn, ok := d.notifs[method]
	d.mu.Unlock()

	if ok {
		if err := fn(params); err != nil {
			d.bump(fmt.Sprintf("%s : %s", method, err.Error()))
		}
	}
	d.bump(tallyKey(method, ok, true))
	return nil
}

func (d *Dispatcher) dispatchRequest(method string, id *ID, params json.RawMessage) error {
	d.mu.Lock()
	fn, ok := d.requests[method]
	guard := d.guard
	d.mu.Unlock()

	if guard != nil {
		if gerr := guard(method); gerr != nil {
			code := InvalidRequest
			var rpcErr *Error
			if errors.As(gerr, &rpcErr) {
				code = rpcErr.Code
			}
			d.bump(fmt.Sprintf("%s : %s", method, gerr.Error()))
			return d.writeError(id, code, gerr.Error())
		}
	}

	var err error
	if !ok {
		err = d.writeError(id, MethodNotFound, fmt.Sprintf("method '%s' not found.", method))
	} else {
		result, herr := fn(params)
		if herr != nil {
			d.bump(fmt.Sprintf("%s : %s", method, herr.Error()))
			code := InternalError
			var rpcErr *Error
			if errors.As(herr, &rpcErr) {
				code = rpcErr.Code
			}
			err = d.writeError(id, code, herr.Error())
		} else {
			err = d.writeResult(id, result)
		}
	}
	d.bump(tallyKey(method, ok, false))
	return err
}

// SendNotification emits a server-initiated notification with no id; no
// response is expected.
func (d *Dispatcher) SendNotification(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	rawMsg := json.RawMessage(raw)
	msg := Message{Method: method, Params: &rawMsg}
	return d.writeMessage(msg)
}

func (d *Dispatcher) writeResult(id *ID, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return d.writeError(id, InternalError, err.Error())
	}
	rawMsg := json.RawMessage(raw)
	return d.writeMessage(Message{ID: id, Result: &rawMsg})
}

func (d *Dispatcher) writeError(id *ID, code int64, message string) error {
	return d.writeMessage(Message{ID: id, Error: &Error{Code: code, Message: message}})
}

func (d *Dispatcher) writeMessage(msg Message) error {
	content, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	content = append(content, '\n')
	return d.write(content)
}

// tallyKey builds the step-6 statistics key: "<method>[ (unhandled)][  ev| RPC]".
func tallyKey(method string, handled, isNotification bool) string {
	key := method
	if !handled {
		key += " (unhandled)"
	}
	if isNotification {
		key += "  ev"
	} else {
		key += " RPC"
	}
	return key
}

// recoverID best-effort extracts an id from a body that failed to unmarshal
// into Message wholesale, e.g. because some other field has the wrong
// shape while id itself is well-formed. Returns nil, as the spec expects,
// when the body is too malformed to recover anything from.
func recoverID(body []byte) *ID {
	var partial struct {
		ID *ID `json:"id"`
	}
	if err := json.Unmarshal(body, &partial); err != nil {
		return nil
	}
	return partial.ID
}
