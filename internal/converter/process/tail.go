package process

import (
	"bytes"
	"log/slog"
	"sync"
)

const maxLineBytes = 4096

// lineTail keeps the most recent stderr lines in a fixed ring.
// Overlong lines are truncated so memory stays bounded.
type lineTail struct {
	mu      sync.Mutex
	lines   []string
	next    int
	full    bool
	partial []byte
	logger  *slog.Logger
}

func newLineTail(capacity int, logger *slog.Logger) *lineTail {
	if capacity <= 0 {
		capacity = DefaultStderrLines
	}
	return &lineTail{
		lines:  make([]string, capacity),
		logger: logger,
	}
}

func (t *lineTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		if idx < 0 {
			t.appendPartial(p)
			break
		}
		t.appendPartial(p[:idx])
		t.push(string(bytes.TrimRight(t.partial, "\r")))
		t.partial = t.partial[:0]
		p = p[idx+1:]
	}
	return n, nil
}

func (t *lineTail) appendPartial(p []byte) {
	room := maxLineBytes - len(t.partial)
	if room <= 0 {
		return
	}
	if len(p) > room {
		p = p[:room]
	}
	t.partial = append(t.partial, p...)
}

func (t *lineTail) push(line string) {
	if t.logger != nil {
		t.logger.Debug("converter stderr", slog.String("line", line))
	}
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

// Lines returns retained lines oldest first, including an unterminated last line
func (t *lineTail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	if t.full {
		out = append(out, t.lines[t.next:]...)
	}
	out = append(out, t.lines[:t.next]...)
	if len(t.partial) > 0 {
		out = append(out, string(t.partial))
		if len(out) > len(t.lines) {
			out = out[1:]
		}
	}
	return out
}
