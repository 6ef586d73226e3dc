package dashboard

import (
	"regexp"
	"strings"
	"sync"
)

// commandTopicSuffix marks outgoing-command channels. Devices subscribe
// to these topics; they never carry device state.
const commandTopicSuffix = "_sub"

// IsCommandTopic reports whether a topic is an outgoing-command channel.
func IsCommandTopic(topic string) bool {
	return strings.HasSuffix(topic, commandTopicSuffix)
}

// Matcher decides whether an MQTT topic falls under a device's topic
// pattern. Exact equality always matches; patterns containing + or #
// are compiled to anchored regular expressions and cached.
//
// The regex translation means "room/#" does not match bare "room",
// only topics starting with "room/". This diverges from strict MQTT
// filter semantics and is kept deliberately: device patterns describe
// the topics a device publishes on, not broker subscriptions.
//
// All methods are safe for concurrent use.
type Matcher struct {
	logger Logger

	mu    sync.RWMutex
	cache map[string]*regexp.Regexp // nil entry records a failed compile
}

// NewMatcher creates a matcher with an empty pattern cache.
func NewMatcher() *Matcher {
	return &Matcher{
		cache:  make(map[string]*regexp.Regexp),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the matcher.
func (m *Matcher) SetLogger(logger Logger) {
	m.logger = logger
}

// Matches reports whether topic falls under pattern.
// Malformed patterns are logged once and treated as non-matching; they
// never propagate an error into the reconciliation loop.
func (m *Matcher) Matches(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if !strings.ContainsAny(pattern, "+#") {
		return false
	}

	m.mu.RLock()
	re, cached := m.cache[pattern]
	m.mu.RUnlock()

	if !cached {
		var err error
		re, err = compileTopicPattern(pattern)
		if err != nil {
			m.logger.Warn("invalid topic pattern", "pattern", pattern, "error", err)
			re = nil
		}
		m.mu.Lock()
		m.cache[pattern] = re
		m.mu.Unlock()
	}

	if re == nil {
		return false
	}
	return re.MatchString(topic)
}

// compileTopicPattern translates an MQTT filter into an anchored regex:
// + matches exactly one path segment, # matches any trailing segments.
func compileTopicPattern(pattern string) (*regexp.Regexp, error) {
	expr := strings.ReplaceAll(pattern, "+", "[^/]+")
	expr = strings.ReplaceAll(expr, "#", ".*")
	return regexp.Compile("^" + expr + "$")
}

// Resolve returns the index of the first device whose pattern matches
// topic. Devices are scanned in insertion order, so the first-registered
// device wins when wildcard patterns overlap; this tie-break is part of
// the contract. Devices with empty or command topics never match.
func (m *Matcher) Resolve(devices []Device, topic string) (int, bool) {
	for i := range devices {
		d := &devices[i]
		if d.Topic == "" || IsCommandTopic(d.Topic) {
			continue
		}
		if m.Matches(d.Topic, topic) {
			return i, true
		}
	}
	return 0, false
}
