package boss

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrOutputConsumed is returned when the output of a remote command is
// read a second time.
var ErrOutputConsumed = errors.New("command output already consumed")

// ErrConfig is a fatal configuration problem: there is nothing safe to
// deploy to without the missing value.
type ErrConfig struct {
	Reason string
}

func (e ErrConfig) Error() string {
	return fmt.Sprintf("configuration: %v", e.Reason)
}

type ErrConnect struct {
	User   string
	Host   string
	Reason string
}

func (e ErrConnect) Error() string {
	return fmt.Sprintf(`Connect("%v@%v"): %v`, e.User, e.Host, e.Reason)
}

// ErrTransfer is returned when a file or directory could not be created on
// the remote host, or its permissions could not be replicated.
type ErrTransfer struct {
	Host   string
	Path   string
	Reason string
}

func (e ErrTransfer) Error() string {
	return fmt.Sprintf(`Transfer("%v", %q): %v`, e.Host, e.Path, e.Reason)
}

type ErrDetoken struct {
	Host   string
	Status int
}

func (e ErrDetoken) Error() string {
	return fmt.Sprintf(`Detoken("%v"): exit %v`, e.Host, e.Status)
}

type ErrScript struct {
	Host   string
	Script string
	Status int
}

func (e ErrScript) Error() string {
	return fmt.Sprintf(`Run("%v", %q): exit %v`, e.Host, e.Script, e.Status)
}

// ErrCmd is returned by helper commands (mkdir, rm) that exited non-zero.
type ErrCmd struct {
	Host    string
	Command string
	Status  int
	Output  string
}

func (e ErrCmd) Error() string {
	if e.Output == "" {
		return fmt.Sprintf(`Run("%v", %q): exit %v`, e.Host, e.Command, e.Status)
	}
	return fmt.Sprintf(`Run("%v", %q): exit %v: %v`, e.Host, e.Command, e.Status, e.Output)
}

// IsHostFailure reports whether err only concerns the deployment of a
// single host, as opposed to the whole run.
func IsHostFailure(err error) bool {
	switch errors.Cause(err).(type) {
	case ErrConnect, ErrTransfer, ErrDetoken, ErrScript, ErrCmd:
		return true
	}
	return false
}
