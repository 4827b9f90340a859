package boss

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Stream tells which remote stream a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Line is one line of remote output, without its line terminator.
type Line struct {
	Stream Stream
	Text   string
}

// Output is the merged stdout and stderr of a single remote command. Lines
// are delivered in arrival order while the command is still running.
// Output can be consumed exactly once.
type Output struct {
	cmd      Command
	lines    chan Line
	consumed bool

	mu      sync.Mutex
	readErr error
}

func newOutput(cmd Command) *Output {
	o := &Output{
		cmd:   cmd,
		lines: make(chan Line),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go o.scan(cmd.Stdout(), Stdout, &wg)
	go o.scan(cmd.Stderr(), Stderr, &wg)
	go func() {
		wg.Wait()
		close(o.lines)
	}()

	return o
}

func (o *Output) scan(r io.Reader, stream Stream, wg *sync.WaitGroup) {
	defer wg.Done()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			o.lines <- Line{Stream: stream, Text: strings.TrimRight(line, "\r\n")}
		}
		if err != nil {
			if err != io.EOF {
				o.mu.Lock()
				if o.readErr == nil {
					o.readErr = err
				}
				o.mu.Unlock()
				// Keep draining so the remote side never blocks on a full
				// window while we wait for its exit status.
				io.Copy(io.Discard, r)
			}
			return
		}
	}
}

// Each calls fn for every line as it arrives, then waits for the command to
// exit and returns its exit status. A second call returns
// ErrOutputConsumed.
func (o *Output) Each(fn func(Line)) (int, error) {
	if o.consumed {
		return -1, ErrOutputConsumed
	}
	o.consumed = true

	for line := range o.lines {
		fn(line)
	}

	status, err := o.cmd.Wait()
	o.cmd.Close()
	if err != nil {
		return status, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return status, o.readErr
}

// Drain discards the output and returns the exit status.
func (o *Output) Drain() (int, error) {
	return o.Each(func(Line) {})
}

// Collect returns the whole output joined by newlines, and the exit
// status.
func (o *Output) Collect() (string, int, error) {
	var lines []string
	status, err := o.Each(func(l Line) {
		lines = append(lines, l.Text)
	})
	return strings.Join(lines, "\n"), status, err
}
