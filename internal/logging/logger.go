// Package logging builds component loggers on top of gommon/log, the logger
// echo uses, so CLI, pipeline and HTTP output share one format.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/labstack/gommon/log"
)

const header = "${time_rfc3339} ${level} [${prefix}]"

var (
	mu     sync.RWMutex
	level  = log.INFO
	output io.Writer = os.Stderr
)

// ParseLevel maps a config value to a log level. Unknown values are info.
func ParseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

// Configure sets the level and destination for loggers created afterwards.
func Configure(levelName string, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	level = ParseLevel(levelName)
	if w != nil {
		output = w
	}
}

// Level returns the configured level.
func Level() log.Lvl {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// New returns a logger whose lines are tagged with the component name.
func New(component string) *log.Logger {
	mu.RLock()
	defer mu.RUnlock()

	l := log.New(component)
	l.SetHeader(header)
	l.SetLevel(level)
	l.SetOutput(output)
	return l
}

// ShortID truncates an identifier for log prefixes.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
