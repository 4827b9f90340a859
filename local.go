package boss

import (
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// LocalDialer "connects" to the local machine: commands run through bash
// and files are copied on the local file system.
type LocalDialer struct{}

func (LocalDialer) Dial(host, user string) (Conn, error) {
	return &localConn{user: user}, nil
}

type localConn struct {
	user string
}

func (c *localConn) Start(command string) (Command, error) {
	cmd := exec.Command("bash", "-c", command)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "starting %q", command)
	}
	return &localCommand{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (c *localConn) Files() (FileChannel, error) {
	return localFiles{}, nil
}

func (c *localConn) Close() error {
	return nil
}

type localCommand struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (c *localCommand) Stdout() io.Reader { return c.stdout }
func (c *localCommand) Stderr() io.Reader { return c.stderr }

func (c *localCommand) Wait() (int, error) {
	err := c.cmd.Wait()
	if exit, ok := err.(*exec.ExitError); ok {
		return exit.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func (c *localCommand) Close() error {
	return nil
}

type localFiles struct{}

func (localFiles) Put(localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(remotePath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (localFiles) Mkdir(path string, mode os.FileMode) error {
	if err := os.Mkdir(path, mode); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}

func (localFiles) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

func (localFiles) Remove(path string) error {
	return os.Remove(path)
}

func (localFiles) RemoveDirectory(path string) error {
	return os.Remove(path)
}

func (localFiles) Close() error {
	return nil
}
