package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// CustomHandler writes one line per record:
//
//	[2006-01-02 15:04:05] [level] [file:line] message | k=v k=v
//
// Attributes whose key names a credential are masked.
type CustomHandler struct {
	w         io.Writer
	level     *slog.LevelVar
	addSource bool
	mu        *sync.Mutex
	attrs     []slog.Attr
}

func NewCustomHandler(w io.Writer, level *slog.LevelVar, addSource bool) *CustomHandler {
	return &CustomHandler{
		w:         w,
		level:     level,
		addSource: addSource,
		mu:        &sync.Mutex{},
	}
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	var line strings.Builder
	line.WriteString("[")
	line.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	line.WriteString("] [")
	line.WriteString(strings.ToLower(r.Level.String()))
	line.WriteString("] ")

	if h.addSource && r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		fmt.Fprintf(&line, "[%s:%d] ", filepath.Base(f.File), f.Line)
	}
	line.WriteString(r.Message)

	n := 0
	writeAttr := func(a slog.Attr) bool {
		if n == 0 {
			line.WriteString(" | ")
		} else {
			line.WriteString(" ")
		}
		n++
		line.WriteString(a.Key)
		line.WriteString("=")
		line.WriteString(formatValue(a.Key, a.Value))
		return true
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(writeAttr)
	line.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line.String())
	return err
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	return h
}

func formatValue(key string, v slog.Value) string {
	s := fmt.Sprintf("%v", v.Resolve().Any())
	if isSensitiveKey(key) {
		s = hideSecret(s)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"") {
		return strconv.Quote(s)
	}
	return s
}
