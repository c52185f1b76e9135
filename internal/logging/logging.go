// Package logging provides one named logrus logger per subsystem so that log
// lines from the long-running sync and export tasks can be told apart at a
// glance.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	Main     = "main"
	API      = "api"
	IMAP     = "imap"
	Sync     = "sync"
	Store    = "store"
	Accounts = "accounts"
)

var (
	mu      sync.Mutex
	loggers map[string]*logrus.Logger
)

var subsystems = []string{Main, API, IMAP, Sync, Store, Accounts}

type prefixFormatter struct {
	inner  logrus.Formatter
	prefix []byte
}

func (f *prefixFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	text, err := f.inner.Format(entry)
	if err != nil {
		return nil, err
	}
	return append(f.prefix, text...), nil
}

func newLogger(subsystem string, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.Level = level
	l.Formatter = &prefixFormatter{
		inner: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		},
		prefix: []byte(fmt.Sprintf("%-8s| ", subsystem)),
	}
	return l
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	}
	return logrus.InfoLevel
}

// Init creates the subsystem loggers at the given level. Calling it again
// replaces the existing loggers, so it must run before loggers are handed out.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()
	initLocked(level)
}

func initLocked(level string) {
	parsed := parseLevel(level)
	loggers = make(map[string]*logrus.Logger, len(subsystems))
	for _, name := range subsystems {
		loggers[name] = newLogger(name, parsed)
	}
}

// Logger returns the logger for a subsystem. When Init was never called (as
// in tests), the loggers are created lazily at info level.
func Logger(subsystem string) *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if loggers == nil {
		initLocked("info")
	}
	l, ok := loggers[subsystem]
	if !ok {
		panic("logging: unknown subsystem " + subsystem)
	}
	return l
}
