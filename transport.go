package boss

import (
	"io"
	"os"
)

// Dialer opens connections to hosts.
type Dialer interface {
	Dial(host, user string) (Conn, error)
}

// Conn is a live connection to one host.
type Conn interface {
	// Start runs command on the host. Both output streams must be read to
	// EOF before Wait is called.
	Start(command string) (Command, error)
	// Files opens a file transfer channel.
	Files() (FileChannel, error)
	Close() error
}

// Command is one running remote command.
type Command interface {
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the command exits and returns its exit status. The
	// error is reserved for transport failures; a non-zero exit is not one.
	Wait() (int, error)
	Close() error
}

// FileChannel transfers files and manages remote file system entries.
type FileChannel interface {
	Put(localPath, remotePath string) error
	Mkdir(path string, mode os.FileMode) error
	Chmod(path string, mode os.FileMode) error
	Remove(path string) error
	RemoveDirectory(path string) error
	Close() error
}
