// Package apex adapts an apex/log logger to swcache.Logger.
package apex

import (
	"io"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/unkn0wn-root/swcache"
)

var _ swcache.Logger = Logger{}

type Logger struct{ L log.Interface }

// New returns a text-handler logger writing to w at level.
func New(w io.Writer, level string) (Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return Logger{}, err
	}
	return Logger{L: &log.Logger{Handler: text.New(w), Level: lvl}}, nil
}

func (a Logger) Debug(msg string, f swcache.Fields) { a.with(f).Debug(msg) }
func (a Logger) Info(msg string, f swcache.Fields)  { a.with(f).Info(msg) }
func (a Logger) Warn(msg string, f swcache.Fields)  { a.with(f).Warn(msg) }
func (a Logger) Error(msg string, f swcache.Fields) { a.with(f).Error(msg) }

func (a Logger) with(f swcache.Fields) *log.Entry {
	e := a.L.WithFields(log.Fields(f))
	if err, ok := f["err"].(error); ok {
		e = e.WithError(err)
	}
	return e
}
