package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner displays a progress animation while waiting on the server.
type Spinner struct {
	w       io.Writer
	message string
	frames  []string

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSpinner creates a new spinner.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:       w,
		message: message,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		done:    make(chan struct{}),
	}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.w, "\r%s %s", s.frames[i%len(s.frames)], s.message)
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the spinner and clears the line. Stop is idempotent and safe
// without Start.
func (s *Spinner) Stop() {
	s.finish("\r\033[K")
}

// Success stops the spinner with a success message.
func (s *Spinner) Success(message string) {
	s.finish("\r\033[K✓ " + message + "\n")
}

// Fail stops the spinner with a failure message.
func (s *Spinner) Fail(message string) {
	s.finish("\r\033[K✗ " + message + "\n")
}

func (s *Spinner) finish(line string) {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		fmt.Fprint(s.w, line)
	})
}
