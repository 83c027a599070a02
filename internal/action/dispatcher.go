package action

import (
	"context"
	"net/http"
	"strings"

	"bookcal/internal/kv"
	appLog "bookcal/internal/log"
)

// Invoker is the HTTP shorthand adapter the api: verb and bare paths use.
type Invoker interface {
	Invoke(method, path, body string)
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithStore sets the store used by store: verbs.
func WithStore(s kv.Store) Option {
	return func(d *Dispatcher) { d.store = s }
}

// WithInvoker sets the adapter used by api: and shorthand GETs.
func WithInvoker(i Invoker) Option {
	return func(d *Dispatcher) { d.invoker = i }
}

// WithLogger injects a logger for ignored and failed actions.
func WithLogger(l appLog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// Dispatcher runs action strings against a Host. Missing collaborators turn
// the verbs that need them into no-ops.
type Dispatcher struct {
	host    Host
	store   kv.Store
	invoker Invoker
	logger  appLog.Logger
}

// New returns a Dispatcher applying effects to host.
func New(host Host, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		host:   host,
		logger: appLog.Named("action"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// WithHost returns a copy of d applying effects to host instead.
func (d *Dispatcher) WithHost(host Host) *Dispatcher {
	cp := *d
	cp.host = host
	return &cp
}

type handlerFunc func(d *Dispatcher, ctx context.Context, raw string)

// handlers must cover every verb in Verbs(); the test suite enforces it.
var handlers = map[Verb]handlerFunc{
	VerbAlert:        (*Dispatcher).alert,
	VerbLog:          (*Dispatcher).log,
	VerbOpen:         (*Dispatcher).open,
	VerbNav:          (*Dispatcher).nav,
	VerbBack:         (*Dispatcher).back,
	VerbReload:       (*Dispatcher).reload,
	VerbCopy:         (*Dispatcher).copy,
	VerbDownload:     (*Dispatcher).download,
	VerbScroll:       (*Dispatcher).scroll,
	VerbClassToggle:  (*Dispatcher).classToggle,
	VerbStoreSet:     (*Dispatcher).storeSet,
	VerbStoreGet:     (*Dispatcher).storeGet,
	VerbStoreRemove:  (*Dispatcher).storeRemove,
	VerbAPI:          (*Dispatcher).api,
	VerbShorthandGet: (*Dispatcher).shorthandGet,
}

// Dispatch parses and runs action. It never fails: unknown verbs and
// malformed arguments are ignored, and a panicking host is recovered.
func (d *Dispatcher) Dispatch(ctx context.Context, action string) {
	if d == nil {
		return
	}
	cmd := Parse(action)
	d.Run(ctx, cmd)
}

// Run executes an already parsed command.
func (d *Dispatcher) Run(ctx context.Context, cmd Command) {
	if d == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("action handler panicked", "verb", cmd.Verb.String(), "panic", r)
		}
	}()

	h, ok := handlers[cmd.Verb]
	if !ok {
		d.logger.Debugw("unrecognized action ignored", "raw", cmd.Raw)
		return
	}
	h(d, ctx, cmd.Raw)
}

func (d *Dispatcher) skip(verb Verb, reason string) {
	d.logger.Debugw("action ignored", "verb", verb.String(), "reason", reason)
}

func (d *Dispatcher) hostOK(verb Verb) bool {
	if d.host == nil {
		d.skip(verb, "no host")
		return false
	}
	return true
}

func (d *Dispatcher) alert(_ context.Context, raw string) {
	if raw == "" {
		d.skip(VerbAlert, "empty message")
		return
	}
	if d.hostOK(VerbAlert) {
		d.host.Alert(raw)
	}
}

func (d *Dispatcher) log(_ context.Context, raw string) {
	if raw == "" {
		d.skip(VerbLog, "empty message")
		return
	}
	if d.hostOK(VerbLog) {
		d.host.Log(raw)
	}
}

func (d *Dispatcher) open(_ context.Context, raw string) {
	url, target, _ := splitPipe(raw)
	url = strings.TrimSpace(url)
	target = strings.TrimSpace(target)
	if url == "" {
		d.skip(VerbOpen, "empty url")
		return
	}
	if target == "" {
		target = DefaultOpenTarget
	}
	if d.hostOK(VerbOpen) {
		d.host.Open(url, target)
	}
}

func (d *Dispatcher) nav(_ context.Context, raw string) {
	path := strings.TrimSpace(raw)
	if path == "" {
		d.skip(VerbNav, "empty path")
		return
	}
	if d.hostOK(VerbNav) {
		d.host.Navigate(path)
	}
}

func (d *Dispatcher) back(context.Context, string) {
	if d.hostOK(VerbBack) {
		d.host.Back()
	}
}

func (d *Dispatcher) reload(context.Context, string) {
	if d.hostOK(VerbReload) {
		d.host.Reload()
	}
}

func (d *Dispatcher) copy(_ context.Context, raw string) {
	if raw == "" {
		d.skip(VerbCopy, "empty text")
		return
	}
	if d.hostOK(VerbCopy) {
		d.host.Copy(raw)
	}
}

func (d *Dispatcher) download(_ context.Context, raw string) {
	filename, content, _ := splitPipe(raw)
	filename = strings.TrimSpace(filename)
	if filename == "" {
		d.skip(VerbDownload, "empty filename")
		return
	}
	if d.hostOK(VerbDownload) {
		d.host.Download(filename, content)
	}
}

func (d *Dispatcher) scroll(_ context.Context, raw string) {
	selector := strings.TrimSpace(raw)
	if selector == "" {
		d.skip(VerbScroll, "empty selector")
		return
	}
	if d.hostOK(VerbScroll) {
		d.host.ScrollIntoView(selector)
	}
}

func (d *Dispatcher) classToggle(_ context.Context, raw string) {
	selector, class, _ := splitPipe(raw)
	selector = strings.TrimSpace(selector)
	class = strings.TrimSpace(class)
	if selector == "" || class == "" {
		d.skip(VerbClassToggle, "selector or class missing")
		return
	}
	if d.hostOK(VerbClassToggle) {
		d.host.ToggleClass(selector, class)
	}
}

func (d *Dispatcher) storeSet(ctx context.Context, raw string) {
	key, value, _ := splitPipe(raw)
	key = strings.TrimSpace(key)
	if key == "" {
		d.skip(VerbStoreSet, "empty key")
		return
	}
	if d.store == nil {
		d.skip(VerbStoreSet, "no store")
		return
	}
	if err := d.store.Set(ctx, key, value); err != nil {
		d.logger.Errorw("store:set failed", "err", err, "key", key)
	}
}

func (d *Dispatcher) storeGet(ctx context.Context, raw string) {
	key := strings.TrimSpace(raw)
	if key == "" {
		d.skip(VerbStoreGet, "empty key")
		return
	}
	if d.store == nil {
		d.skip(VerbStoreGet, "no store")
		return
	}
	value, ok, err := d.store.Get(ctx, key)
	if err != nil {
		d.logger.Errorw("store:get failed", "err", err, "key", key)
		return
	}
	if !ok {
		d.logger.Debugw("store:get found nothing", "key", key)
		return
	}
	if d.hostOK(VerbStoreGet) {
		d.host.Log(value)
	}
}

func (d *Dispatcher) storeRemove(ctx context.Context, raw string) {
	key := strings.TrimSpace(raw)
	if key == "" {
		d.skip(VerbStoreRemove, "empty key")
		return
	}
	if d.store == nil {
		d.skip(VerbStoreRemove, "no store")
		return
	}
	if err := d.store.Remove(ctx, key); err != nil {
		d.logger.Errorw("store:remove failed", "err", err, "key", key)
	}
}

// api parses "METHOD PATH|BODY". Without a method token the request is a
// GET and the body is dropped.
func (d *Dispatcher) api(_ context.Context, raw string) {
	head, body, _ := splitPipe(raw)
	fields := strings.Fields(head)
	var method, path string
	switch {
	case len(fields) == 0:
		d.skip(VerbAPI, "empty request")
		return
	case isPathToken(fields[0]):
		method, path, body = http.MethodGet, fields[0], ""
	case len(fields) < 2:
		d.skip(VerbAPI, "method without path")
		return
	default:
		method, path = strings.ToUpper(fields[0]), fields[1]
	}
	d.invoke(VerbAPI, method, path, body)
}

func (d *Dispatcher) shorthandGet(_ context.Context, raw string) {
	d.invoke(VerbShorthandGet, http.MethodGet, strings.TrimSpace(raw), "")
}

func (d *Dispatcher) invoke(verb Verb, method, path, body string) {
	if d.invoker == nil {
		d.skip(verb, "no http adapter")
		return
	}
	d.invoker.Invoke(method, path, body)
}

func isPathToken(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
