package command

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// LineSource reads "<topic> <argument>" lines, e.g. from stdin.
// Blank lines and lines starting with '#' are skipped.
type LineSource struct {
	r      io.Reader
	topics Topics
	log    logrus.FieldLogger
}

func NewLineSource(r io.Reader, topics Topics, log logrus.FieldLogger) *LineSource {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LineSource{r: r, topics: topics, log: log}
}

// Run returns when the reader is drained or ctx is cancelled. A read that
// is blocked when ctx ends is abandoned, not interrupted.
func (s *LineSource) Run(ctx context.Context, h Handler) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return ctx.Err()
				}
			}
			s.handle(h, line)
		}
	}
}

func (s *LineSource) handle(h Handler, line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	topic, arg, _ := strings.Cut(line, " ")
	if err := s.topics.Dispatch(h, topic, strings.TrimSpace(arg)); err != nil {
		s.log.WithFields(logrus.Fields{
			"function": "LineSource.handle",
			"line":     line,
			"error":    err,
		}).Warn("Ignoring command")
	}
}
