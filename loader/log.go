// SPDX-License-Identifier: Unlicense OR MIT

package loader

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger writing plain text lines to out. The
// firmware clock is not trusted, so entries carry no timestamp.
func NewLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// serialHook copies log entries to a serial port.
type serialHook struct {
	w         io.Writer
	formatter logrus.Formatter
}

func newSerialHook(w io.Writer) *serialHook {
	return &serialHook{
		w:         w,
		formatter: &logrus.TextFormatter{DisableTimestamp: true, DisableColors: true},
	}
}

func (h *serialHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serialHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.w.Write(b)
	return err
}
