package action

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTerminalDownloadStaysInDirectory(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	term := NewTerminal(&out, dir)

	term.Download("../../etc/report.txt", "hello|world")

	data, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	if err != nil {
		t.Fatalf("expected file in download dir: %v", err)
	}
	if string(data) != "hello|world" {
		t.Fatalf("unexpected content %q", data)
	}
	if !strings.Contains(out.String(), "[download] saved") {
		t.Fatalf("expected download notice, got %q", out.String())
	}
}

func TestTerminalCopyFallsBackToPrinting(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, t.TempDir())
	term.writeClipboard = func(string) error { return errors.New("no clipboard") }

	term.Copy("secret")
	if !strings.Contains(out.String(), "[copy] secret") {
		t.Fatalf("expected printed fallback, got %q", out.String())
	}

	var copied string
	term.writeClipboard = func(s string) error { copied = s; return nil }
	term.Copy("token")
	if copied != "token" {
		t.Fatalf("expected clipboard write, got %q", copied)
	}
}

func TestTerminalDescribesBrowserEffects(t *testing.T) {
	var out bytes.Buffer
	d := New(NewTerminal(&out, t.TempDir()))
	d.Dispatch(context.Background(), "open:https://example.com")
	d.Dispatch(context.Background(), "class:toggle .box|ring-2")
	got := out.String()
	if !strings.Contains(got, "[open] https://example.com (_blank)") {
		t.Fatalf("missing open line in %q", got)
	}
	if !strings.Contains(got, `[class] toggle "ring-2" on .box`) {
		t.Fatalf("missing class line in %q", got)
	}
}
