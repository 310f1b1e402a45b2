package logging

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// RecentHook is a logrus hook that remembers the last size entries.
type RecentHook struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func NewRecentHook(size int) *RecentHook {
	if size <= 0 {
		size = 1
	}
	return &RecentHook{lines: make([]string, size)}
}

func (h *RecentHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *RecentHook) Fire(e *logrus.Entry) error {
	line := fmt.Sprintf(
		"%s [%s] %s",
		e.Time.Format("01-02 15:04:05"),
		strings.ToUpper(e.Level.String()),
		e.Message,
	)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lines[h.next] = line
	h.next = (h.next + 1) % len(h.lines)
	if h.next == 0 {
		h.full = true
	}
	return nil
}

// Recent returns up to n lines, oldest first.
func (h *RecentHook) Recent(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ordered []string
	if h.full {
		ordered = append(ordered, h.lines[h.next:]...)
	}
	ordered = append(ordered, h.lines[:h.next]...)

	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
