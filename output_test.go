package boss

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommand struct {
	stdout io.Reader
	stderr io.Reader
	status int
	waited bool
	closed bool
}

func (c *fakeCommand) Stdout() io.Reader { return c.stdout }
func (c *fakeCommand) Stderr() io.Reader { return c.stderr }

func (c *fakeCommand) Wait() (int, error) {
	c.waited = true
	return c.status, nil
}

func (c *fakeCommand) Close() error {
	c.closed = true
	return nil
}

func TestOutputEach(t *testing.T) {
	cmd := &fakeCommand{
		stdout: strings.NewReader("one\ntwo\r\nthree"),
		stderr: strings.NewReader("oops\n"),
		status: 7,
	}

	var stdout, stderr []string
	status, err := newOutput(cmd).Each(func(l Line) {
		if l.Stream == Stderr {
			stderr = append(stderr, l.Text)
			return
		}
		stdout = append(stdout, l.Text)
	})
	require.NoError(t, err)

	assert.Equal(t, 7, status)
	assert.Equal(t, []string{"one", "two", "three"}, stdout)
	assert.Equal(t, []string{"oops"}, stderr)
	assert.True(t, cmd.waited)
	assert.True(t, cmd.closed)
}

func TestOutputSinglePass(t *testing.T) {
	out := newOutput(&fakeCommand{
		stdout: strings.NewReader("hello\n"),
		stderr: strings.NewReader(""),
	})

	text, status, err := out.Collect()
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 0, status)

	_, err = out.Drain()
	assert.Equal(t, ErrOutputConsumed, err)

	_, _, err = out.Collect()
	assert.Equal(t, ErrOutputConsumed, err)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestOutputReadError(t *testing.T) {
	out := newOutput(&fakeCommand{
		stdout: io.MultiReader(strings.NewReader("partial\n"), brokenReader{}),
		stderr: strings.NewReader(""),
	})

	text, _, err := out.Collect()
	assert.Equal(t, "partial", text)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}
