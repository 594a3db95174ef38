//go:build e2e

package e2e

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/testcontainers/testcontainers-go"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func StripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

type LogSource string

const (
	SourceStdout LogSource = "stdout"
	SourceStderr LogSource = "stderr"
)

type logKey struct {
	node   string
	source LogSource
}

// LogSubscription fires MatchCh once the node's output on Source contains Pattern
type LogSubscription struct {
	Node    string
	Source  LogSource
	Pattern string
	MatchCh chan struct{}
}

func (s *LogSubscription) matches(content string) bool {
	return s.Pattern != "" && strings.Contains(content, s.Pattern)
}

func (s *LogSubscription) fire() {
	select {
	case s.MatchCh <- struct{}{}:
	default:
	}
}

// LogManager fans container output out to subscribers
type LogManager struct {
	mu          sync.Mutex
	subscribers []*LogSubscription
	// everything a node has logged so far, so a late subscriber still matches
	history map[logKey]*strings.Builder
}

func NewLogManager() *LogManager {
	return &LogManager{
		history: make(map[logKey]*strings.Builder),
	}
}

func (m *LogManager) Accept(node string, source LogSource, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := logKey{node, source}
	b, ok := m.history[key]
	if !ok {
		b = &strings.Builder{}
		m.history[key] = b
	}
	b.WriteString(content)
	full := b.String()

	for _, sub := range m.subscribers {
		if sub.Node != node || sub.Source != source {
			continue
		}
		// a line may be split across writes, so the whole history is checked too
		if sub.matches(content) || sub.matches(full) {
			sub.fire()
		}
	}
}

func (m *LogManager) Subscribe(node string, source LogSource, pattern string) *LogSubscription {
	sub := &LogSubscription{
		Node:    node,
		Source:  source,
		Pattern: pattern,
		MatchCh: make(chan struct{}, 1),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
	if b, ok := m.history[logKey{node, source}]; ok && sub.matches(b.String()) {
		sub.fire()
	}
	return sub
}

func (m *LogManager) Unsubscribe(sub *LogSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subscribers {
		if s == sub {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			break
		}
	}
}

// History returns everything the node has written to source
func (m *LogManager) History(node string, source LogSource) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.history[logKey{node, source}]; ok {
		return b.String()
	}
	return ""
}

type UnifiedLogConsumer struct {
	Node    string
	Manager *LogManager
}

func (c *UnifiedLogConsumer) Accept(l testcontainers.Log) {
	source := SourceStdout
	if l.LogType == testcontainers.StderrLog {
		source = SourceStderr
	}
	content := StripAnsi(string(l.Content))
	fmt.Printf("[%s:%s] %s", c.Node, source, content)
	c.Manager.Accept(c.Node, source, content)
}
