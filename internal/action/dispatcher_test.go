package action

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"bookcal/internal/kv"
	appLog "bookcal/internal/log"
)

type invocation struct {
	method, path, body string
}

type fakeInvoker struct {
	mu    sync.Mutex
	calls []invocation
}

func (f *fakeInvoker) Invoke(method, path, body string) {
	f.mu.Lock()
	f.calls = append(f.calls, invocation{method, path, body})
	f.mu.Unlock()
}

func newTestDispatcher() (*Dispatcher, *Recorder, *kv.Memory, *fakeInvoker) {
	rec := &Recorder{}
	store := kv.NewMemory()
	inv := &fakeInvoker{}
	d := New(rec, WithStore(store), WithInvoker(inv), WithLogger(appLog.Nop()))
	return d, rec, store, inv
}

func TestEveryVerbHasHandler(t *testing.T) {
	for _, v := range Verbs() {
		if handlers[v] == nil {
			t.Fatalf("verb %s has no handler", v)
		}
	}
	if _, ok := handlers[VerbUnknown]; ok {
		t.Fatalf("unknown verb must not have a handler")
	}
}

func TestDispatchHostEffects(t *testing.T) {
	cases := []struct {
		action string
		want   Call
	}{
		{"alert:Hello", Call{Effect: EffectAlert, Args: []string{"Hello"}}},
		{"log:checkpoint", Call{Effect: EffectLog, Args: []string{"checkpoint"}}},
		{"open:https://example.com|_self", Call{Effect: EffectOpen, Args: []string{"https://example.com", "_self"}}},
		{"open:https://example.com", Call{Effect: EffectOpen, Args: []string{"https://example.com", "_blank"}}},
		{"nav:/board", Call{Effect: EffectNavigate, Args: []string{"/board"}}},
		{"back", Call{Effect: EffectBack}},
		{"reload:", Call{Effect: EffectReload}},
		{"copy:abc|def", Call{Effect: EffectCopy, Args: []string{"abc|def"}}},
		{"download:notes.txt|line1|line2", Call{Effect: EffectDownload, Args: []string{"notes.txt", "line1|line2"}}},
		{"download:empty.txt", Call{Effect: EffectDownload, Args: []string{"empty.txt", ""}}},
		{"scroll:#footer", Call{Effect: EffectScroll, Args: []string{"#footer"}}},
		{"class:toggle .box|ring-2", Call{Effect: EffectToggleClass, Args: []string{".box", "ring-2"}}},
	}
	for _, tc := range cases {
		d, rec, _, inv := newTestDispatcher()
		d.Dispatch(context.Background(), tc.action)
		calls := rec.Calls()
		if len(calls) != 1 {
			t.Fatalf("%q: expected exactly one effect, got %+v", tc.action, calls)
		}
		if !reflect.DeepEqual(calls[0], tc.want) {
			t.Fatalf("%q: expected %+v, got %+v", tc.action, tc.want, calls[0])
		}
		if len(inv.calls) != 0 {
			t.Fatalf("%q: unexpected network call %+v", tc.action, inv.calls)
		}
	}
}

func TestDispatchStoreVerbs(t *testing.T) {
	d, rec, store, _ := newTestDispatcher()
	ctx := context.Background()

	d.Dispatch(ctx, "store:set theme|dark|mode")
	if v, ok, _ := store.Get(ctx, "theme"); !ok || v != "dark|mode" {
		t.Fatalf("expected theme=dark|mode, got %q ok=%v", v, ok)
	}
	if len(rec.Calls()) != 0 {
		t.Fatalf("store:set must not touch the host")
	}

	d.Dispatch(ctx, "store:get theme")
	want := []Call{{Effect: EffectLog, Args: []string{"dark|mode"}}}
	if got := rec.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected store:get to surface value, got %+v", got)
	}

	d.Dispatch(ctx, "store:remove theme")
	if _, ok, _ := store.Get(ctx, "theme"); ok {
		t.Fatalf("expected theme to be removed")
	}
	rec.Reset()
	d.Dispatch(ctx, "store:get theme")
	if got := rec.Calls(); len(got) != 0 {
		t.Fatalf("store:get of a missing key must not surface anything, got %+v", got)
	}

	d.Dispatch(ctx, "store:set flag")
	if v, ok, _ := store.Get(ctx, "flag"); !ok || v != "" {
		t.Fatalf("store:set without value should store empty string, got %q ok=%v", v, ok)
	}
}

func TestDispatchAPI(t *testing.T) {
	cases := []struct {
		action string
		want   invocation
	}{
		{`api:POST /api/echo|{"msg":"hi"}`, invocation{"POST", "/api/echo", `{"msg":"hi"}`}},
		{`api:put /api/items/1|{"a":"x|y"}`, invocation{"PUT", "/api/items/1", `{"a":"x|y"}`}},
		{"api:DELETE /api/items/1", invocation{"DELETE", "/api/items/1", ""}},
		{`api:/api/ping|{"ignored":true}`, invocation{"GET", "/api/ping", ""}},
		{"api:https://example.com/hook", invocation{"GET", "https://example.com/hook", ""}},
		{"/api/ping", invocation{"GET", "/api/ping", ""}},
	}
	for _, tc := range cases {
		d, rec, _, inv := newTestDispatcher()
		d.Dispatch(context.Background(), tc.action)
		if len(inv.calls) != 1 || inv.calls[0] != tc.want {
			t.Fatalf("%q: expected %+v, got %+v", tc.action, tc.want, inv.calls)
		}
		if len(rec.Calls()) != 0 {
			t.Fatalf("%q: api calls must not touch the host", tc.action)
		}
	}
}

func TestDispatchMalformedAndUnknownAreNoOps(t *testing.T) {
	for _, action := range []string{
		"",
		"explode:now",
		"alert:",
		"log",
		"open:|_self",
		"nav:",
		"copy:",
		"download:|content",
		"scroll:  ",
		"class:toggle .box",
		"class:toggle |ring-2",
		"class:flip .box|ring-2",
		"store:set |value",
		"store:get",
		"store:remove ",
		"store:wipe all",
		"api:",
		"api:POST",
		"shorthand-get:/api/ping",
	} {
		d, rec, store, inv := newTestDispatcher()
		d.Dispatch(context.Background(), action)
		if calls := rec.Calls(); len(calls) != 0 {
			t.Fatalf("%q: expected no effect, got %+v", action, calls)
		}
		if len(inv.calls) != 0 {
			t.Fatalf("%q: expected no network call, got %+v", action, inv.calls)
		}
		if store.Len() != 0 {
			t.Fatalf("%q: expected store untouched", action)
		}
	}
}

type panickyHost struct{ Recorder }

func (p *panickyHost) Alert(string) { panic("boom") }

func TestDispatchRecoversFromHostPanic(t *testing.T) {
	d := New(&panickyHost{}, WithLogger(appLog.Nop()))
	d.Dispatch(context.Background(), "alert:hi")
}

type failingStore struct{ kv.Memory }

func (f *failingStore) Set(context.Context, string, string) error { return errors.New("disk full") }

func TestDispatchAbsorbsStoreErrors(t *testing.T) {
	d := New(&Recorder{}, WithStore(&failingStore{}), WithLogger(appLog.Nop()))
	d.Dispatch(context.Background(), "store:set k|v")
}

func TestDispatchWithoutCollaborators(t *testing.T) {
	d := New(nil, WithLogger(appLog.Nop()))
	for _, action := range []string{"alert:x", "back", "store:set a|b", "store:get a", "/api/ping", "api:GET /x"} {
		d.Dispatch(context.Background(), action)
	}
	var nilDispatcher *Dispatcher
	nilDispatcher.Dispatch(context.Background(), "alert:x")
}

func TestWithHostDoesNotMutateOriginal(t *testing.T) {
	d, rec, _, _ := newTestDispatcher()
	other := &Recorder{}
	d.WithHost(other).Dispatch(context.Background(), "alert:x")
	if len(rec.Calls()) != 0 || len(other.Calls()) != 1 {
		t.Fatalf("expected effect on the substituted host only")
	}
}

func TestRecorderStandsInForStoreAndInvoker(t *testing.T) {
	rec := &Recorder{}
	d := New(rec, WithStore(rec), WithInvoker(rec), WithLogger(appLog.Nop()))
	ctx := context.Background()
	for _, a := range []string{
		"store:set greeting|hi",
		"store:get greeting",
		"store:remove greeting",
		`api:POST /hook|{"a":1}`,
		"/api/ping",
	} {
		d.Dispatch(ctx, a)
	}

	want := []Call{
		{Effect: EffectStoreSet, Args: []string{"greeting", "hi"}},
		{Effect: EffectStoreGet, Args: []string{"greeting"}},
		{Effect: EffectStoreRemove, Args: []string{"greeting"}},
		{Effect: EffectAPI, Args: []string{"POST", "/hook", `{"a":1}`}},
		{Effect: EffectAPI, Args: []string{"GET", "/api/ping", ""}},
	}
	if got := rec.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}
