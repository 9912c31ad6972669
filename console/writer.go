package console

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Writer copies device output to the terminal unmodified. It implements
// bridge.Output.
type Writer struct {
	w   io.Writer
	log logrus.FieldLogger
}

// NewWriter returns a Writer on w. A nil log discards warnings.
func NewWriter(w io.Writer, log logrus.FieldLogger) *Writer {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Writer{w: w, log: log}
}

// WriteRaw writes p. A partial write is logged and otherwise ignored; only a
// write that accepted nothing is an error.
func (w *Writer) WriteRaw(p []byte) error {
	n, err := w.w.Write(p)
	if n >= len(p) {
		return nil
	}
	if n == 0 && err != nil {
		return fmt.Errorf("write terminal: %w", err)
	}
	entry := w.log.WithFields(logrus.Fields{"requested": len(p), "written": n})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("short write to terminal")
	return nil
}
