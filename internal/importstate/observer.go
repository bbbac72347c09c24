package importstate

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// Observer receives every state change synchronously.
type Observer interface {
	StatusChanged(status Status)
	ModelCountChanged(finished, total int)
	ThumbnailCountChanged(finished, total int)
	SetStarted(name string)
	GroupCreated(name, groupID string)
	Failed(reason string)
}

// Nop discards events.
type Nop struct{}

func (Nop) StatusChanged(Status)           {}
func (Nop) ModelCountChanged(int, int)     {}
func (Nop) ThumbnailCountChanged(int, int) {}
func (Nop) SetStarted(string)              {}
func (Nop) GroupCreated(string, string)    {}
func (Nop) Failed(string)                  {}

// LogObserver writes events to a structured logger. Count updates are logged at debug.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o LogObserver) StatusChanged(status Status) {
	o.logger().Info("import status", "status", status.String())
}

func (o LogObserver) ModelCountChanged(finished, total int) {
	o.logger().Debug("models progress", "finished", finished, "total", total)
}

func (o LogObserver) ThumbnailCountChanged(finished, total int) {
	o.logger().Debug("thumbnails progress", "finished", finished, "total", total)
}

func (o LogObserver) SetStarted(name string) {
	o.logger().Info("batch started", "group", name)
}

func (o LogObserver) GroupCreated(name, groupID string) {
	o.logger().Info("group created", "group", name, "group_id", groupID)
}

func (o LogObserver) Failed(reason string) {
	o.logger().Error("import failed", "reason", reason)
}

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiBlue  = "\x1b[34m"
	clearLine = "\r\x1b[2K"
)

// ConsoleObserver prints human-readable progress. On a terminal, count
// updates redraw a single line; otherwise only status and group events are printed.
type ConsoleObserver struct {
	mu       sync.Mutex
	out      io.Writer
	terminal bool
	pending  bool
}

// NewConsoleObserver returns a console observer writing to out.
func NewConsoleObserver(out io.Writer) *ConsoleObserver {
	return &ConsoleObserver{out: out, terminal: isTerminal(out)}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (o *ConsoleObserver) StatusChanged(status Status) {
	switch status {
	case StatusFinishedModels, StatusFinished:
		o.line(ansiGreen, "%s", status)
	case StatusFailure:
	default:
		o.line(ansiBlue, "%s", status)
	}
}

func (o *ConsoleObserver) ModelCountChanged(finished, total int) {
	o.progress("models", finished, total)
}

func (o *ConsoleObserver) ThumbnailCountChanged(finished, total int) {
	o.progress("thumbnails", finished, total)
}

func (o *ConsoleObserver) SetStarted(name string) {
	if name == "" {
		return
	}
	o.line("", "importing %s", name)
}

func (o *ConsoleObserver) GroupCreated(name, groupID string) {
	o.line("", "group %s (%s)", name, groupID)
}

func (o *ConsoleObserver) Failed(reason string) {
	o.line(ansiRed, "failed: %s", reason)
}

func (o *ConsoleObserver) progress(label string, finished, total int) {
	if !o.terminal {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.out, "%s  %s %d/%d", clearLine, label, finished, total)
	o.pending = true
}

func (o *ConsoleObserver) line(color, format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	text := fmt.Sprintf(format, args...)
	if o.terminal {
		if o.pending {
			fmt.Fprint(o.out, clearLine)
			o.pending = false
		}
		if color != "" {
			text = color + text + ansiReset
		}
	}
	fmt.Fprintln(o.out, text)
}

// Multi fans events out to several observers in order.
func Multi(observers ...Observer) Observer {
	list := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multi []Observer

func (m multi) StatusChanged(status Status) {
	for _, o := range m {
		o.StatusChanged(status)
	}
}

func (m multi) ModelCountChanged(finished, total int) {
	for _, o := range m {
		o.ModelCountChanged(finished, total)
	}
}

func (m multi) ThumbnailCountChanged(finished, total int) {
	for _, o := range m {
		o.ThumbnailCountChanged(finished, total)
	}
}

func (m multi) SetStarted(name string) {
	for _, o := range m {
		o.SetStarted(name)
	}
}

func (m multi) GroupCreated(name, groupID string) {
	for _, o := range m {
		o.GroupCreated(name, groupID)
	}
}

func (m multi) Failed(reason string) {
	for _, o := range m {
		o.Failed(reason)
	}
}
