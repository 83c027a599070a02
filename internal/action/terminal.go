package action

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/atotto/clipboard"

	appLog "bookcal/internal/log"
)

// Terminal applies effects in a CLI session. Browser-only effects are
// described on the writer instead.
type Terminal struct {
	mu          sync.Mutex
	out         io.Writer
	downloadDir string
	// writeClipboard is swapped in tests; headless machines often lack a
	// clipboard provider.
	writeClipboard func(string) error
}

// NewTerminal writes to out and saves downloads under downloadDir.
func NewTerminal(out io.Writer, downloadDir string) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	if downloadDir == "" {
		downloadDir = "."
	}
	return &Terminal{
		out:            out,
		downloadDir:    downloadDir,
		writeClipboard: clipboard.WriteAll,
	}
}

func (t *Terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format+"\n", args...)
}

func (t *Terminal) Alert(message string) { t.printf("[alert] %s", message) }

func (t *Terminal) Log(message string) { t.printf("[log] %s", message) }

func (t *Terminal) Open(url, target string) { t.printf("[open] %s (%s)", url, target) }

func (t *Terminal) Navigate(path string) { t.printf("[nav] %s", path) }

func (t *Terminal) Back() { t.printf("[back]") }

func (t *Terminal) Reload() { t.printf("[reload]") }

func (t *Terminal) Copy(text string) {
	if err := t.writeClipboard(text); err != nil {
		appLog.Error("clipboard unavailable", err)
		t.printf("[copy] %s", text)
		return
	}
	t.printf("[copy] %d bytes copied to clipboard", len(text))
}

// Download saves content under the download directory. Only the base name
// of filename is used so a payload cannot escape the directory.
func (t *Terminal) Download(filename, content string) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		t.printf("[download] refused empty filename")
		return
	}
	if err := os.MkdirAll(t.downloadDir, 0o755); err != nil {
		appLog.Error("download dir unavailable", err, "dir", t.downloadDir)
		return
	}
	path := filepath.Join(t.downloadDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		appLog.Error("download write failed", err, "path", path)
		return
	}
	t.printf("[download] saved %s", path)
}

func (t *Terminal) ScrollIntoView(selector string) { t.printf("[scroll] %s", selector) }

func (t *Terminal) ToggleClass(selector, class string) {
	t.printf("[class] toggle %q on %s", class, selector)
}
