package logwatcher

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/hpcloud/tail"
)

// Match is a console line that matched one of the watched patterns.
type Match struct {
	Pattern *regexp.Regexp
	Line    string
}

// Watch follows logPath from the beginning and sends the first line matching
// any of patterns. The file does not have to exist yet. The returned channel
// is closed once a match was sent or ctx is done.
func Watch(ctx context.Context, logPath string, patterns ...*regexp.Regexp) (<-chan Match, error) {
	t, err := tail.TailFile(logPath, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("error tailing log file: %w", err)
	}

	matches := make(chan Match, 1)
	go func() {
		defer close(matches)
		defer t.Cleanup()
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					continue
				}
				for _, p := range patterns {
					if p.MatchString(line.Text) {
						matches <- Match{Pattern: p, Line: line.Text}
						return
					}
				}
			}
		}
	}()
	return matches, nil
}
