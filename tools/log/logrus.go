// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package log

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var _ = fmt.Print

var base = new_base_logger()

func new_base_logger() *logrus.Logger {
	ans := logrus.New()
	ans.SetLevel(logrus.WarnLevel)
	ans.Formatter = &logrus.TextFormatter{DisableTimestamp: false, FullTimestamp: true, TimestampFormat: "15:04:05.000000"}
	ans.AddHook(new(TaggedHook))
	return ans
}

// NewLogger returns an entry whose messages are prefixed with [tag]
func NewLogger(tag string) *logrus.Entry {
	return logrus.NewEntry(base).WithField("tag", tag)
}

// SetLevel accepts any of the logrus level names, case insensitively
func SetLevel(level string) error {
	if level == "" {
		return nil
	}
	l, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("Unknown log level: %#v", level)
	}
	base.SetLevel(l)
	return nil
}

func Level() string {
	return base.GetLevel().String()
}

func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

type TaggedHook struct{}

func (h *TaggedHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *TaggedHook) Fire(entry *logrus.Entry) error {
	if tagObj, loaded := entry.Data["tag"]; loaded {
		tag := tagObj.(string)
		delete(entry.Data, "tag")
		entry.Message = "[" + tag + "]: " + strings.TrimPrefix(entry.Message, tag+": ")
	}
	return nil
}
