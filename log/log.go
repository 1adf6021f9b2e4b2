// Package log defines the structured logging capability the engine
// packages accept, with a no-op default and a github.com/sirupsen/logrus-
// backed implementation. The teacher's own go.mod declares logrus but
// never imports it; every other log call in the teacher is a bare
// fmt.Println banner or stdlib log.Printf/Fatalf in cmd/obsidiand/main.go.
// This package is where that dependency is actually put to work, with
// fields (chain, tree, wallet) instead of the teacher's string-formatted
// banners.
package log

import "github.com/sirupsen/logrus"

// Logger is the capability every engine package that logs depends on.
// Fields returns a derived Logger with key/value pairs attached to every
// subsequent call, mirroring logrus.Entry's WithFields chaining.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fields(kv ...string) Logger
}

// Noop discards everything logged through it. The zero value is ready to
// use and is the default a caller gets when it doesn't wire a real
// Logger in, matching spec.md's scoping of logging sinks as a host
// concern the core only depends on through this interface.
type Noop struct{}

func (Noop) Debug(string)        {}
func (Noop) Info(string)         {}
func (Noop) Warn(string)         {}
func (Noop) Error(string)        {}
func (n Noop) Fields(...string) Logger { return n }

// Logrus wraps a *logrus.Entry.
type Logrus struct {
	entry *logrus.Entry
}

// NewLogrus builds a Logger backed by a fresh logrus.Logger at the given
// level (parsed with logrus.ParseLevel; an unparseable level falls back
// to Info).
func NewLogrus(level string) Logger {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return Logrus{entry: logrus.NewEntry(l)}
}

func (l Logrus) Debug(msg string) { l.entry.Debug(msg) }
func (l Logrus) Info(msg string)  { l.entry.Info(msg) }
func (l Logrus) Warn(msg string)  { l.entry.Warn(msg) }
func (l Logrus) Error(msg string) { l.entry.Error(msg) }

// Fields attaches kv pairs (key1, value1, key2, value2, ...) to every
// subsequent call on the returned Logger. An odd-length kv is truncated,
// dropping its trailing unpaired key, since a logged field with no value
// would be more confusing than a dropped one.
func (l Logrus) Fields(kv ...string) Logger {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	return Logrus{entry: l.entry.WithFields(fields)}
}
