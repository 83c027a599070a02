package action

import (
	"context"
	"sync"

	"bookcal/internal/kv"
)

// DefaultOpenTarget is used when open: omits a target.
const DefaultOpenTarget = "_blank"

// Host is the surface the dispatcher applies effects to: a browser page, a
// terminal, or a recorder in tests.
type Host interface {
	Alert(message string)
	Log(message string)
	Open(url, target string)
	Navigate(path string)
	Back()
	Reload()
	Copy(text string)
	Download(filename, content string)
	ScrollIntoView(selector string)
	ToggleClass(selector, class string)
}

// Effect names one Host method.
type Effect string

const (
	EffectAlert       Effect = "alert"
	EffectLog         Effect = "log"
	EffectOpen        Effect = "open"
	EffectNavigate    Effect = "navigate"
	EffectBack        Effect = "back"
	EffectReload      Effect = "reload"
	EffectCopy        Effect = "copy"
	EffectDownload    Effect = "download"
	EffectScroll      Effect = "scroll"
	EffectToggleClass Effect = "toggle_class"

	// Recorded when a Recorder also stands in for the store and the HTTP
	// adapter, so the client applies them to its own storage and origin.
	EffectStoreSet    Effect = "store_set"
	EffectStoreGet    Effect = "store_get"
	EffectStoreRemove Effect = "store_remove"
	EffectAPI         Effect = "api"
)

// Call is one recorded effect.
type Call struct {
	Effect Effect   `json:"effect"`
	Args   []string `json:"args,omitempty"`
}

// Recorder is a Host that records effects instead of applying them. The web
// host returns the recording to the browser, which replays it. A Recorder
// is also a kv.Store and an Invoker: store and api verbs routed to it are
// recorded rather than run, and Get always reports a missing key.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) record(e Effect, args ...string) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Effect: e, Args: args})
	r.mu.Unlock()
}

// Calls returns a copy of the recorded effects.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Reset drops recorded effects.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

var (
	_ Host     = (*Recorder)(nil)
	_ kv.Store = (*Recorder)(nil)
	_ Invoker  = (*Recorder)(nil)
)

// Alert records an alert effect.
func (r *Recorder) Alert(message string) { r.record(EffectAlert, message) }

// Log records a log effect.
func (r *Recorder) Log(message string) { r.record(EffectLog, message) }

// Open records an open effect with its url and target.
func (r *Recorder) Open(url, target string) { r.record(EffectOpen, url, target) }

// Navigate records a navigate effect.
func (r *Recorder) Navigate(path string) { r.record(EffectNavigate, path) }

// Back records a back effect.
func (r *Recorder) Back() { r.record(EffectBack) }

// Reload records a reload effect.
func (r *Recorder) Reload() { r.record(EffectReload) }

// Copy records a copy effect.
func (r *Recorder) Copy(text string) { r.record(EffectCopy, text) }

// Download records a download effect with filename and content.
func (r *Recorder) Download(filename, content string) { r.record(EffectDownload, filename, content) }

// ScrollIntoView records a scroll effect.
func (r *Recorder) ScrollIntoView(selector string) { r.record(EffectScroll, selector) }

// ToggleClass records a toggle_class effect with selector and class.
func (r *Recorder) ToggleClass(selector, class string) { r.record(EffectToggleClass, selector, class) }

// Get records a store_get effect and reports the key as missing.
func (r *Recorder) Get(_ context.Context, key string) (string, bool, error) {
	r.record(EffectStoreGet, key)
	return "", false, nil
}

// Set records a store_set effect.
func (r *Recorder) Set(_ context.Context, key, value string) error {
	r.record(EffectStoreSet, key, value)
	return nil
}

// Remove records a store_remove effect.
func (r *Recorder) Remove(_ context.Context, key string) error {
	r.record(EffectStoreRemove, key)
	return nil
}

// Invoke records an api effect with the method, path and body.
func (r *Recorder) Invoke(method, path, body string) {
	r.record(EffectAPI, method, path, body)
}
