// Package ssh connects boss sessions to remote hosts over SSH, with SFTP
// as the file channel.
package ssh

import (
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/adamwasila/boss"
)

// Dialer opens SSH connections. Keys come from the running SSH agent and
// from the IdentityFile of the matching ConfigFile entry.
type Dialer struct {
	// ConfigFile is an OpenSSH client config mapping aliases to HostName,
	// Port and IdentityFile. Optional.
	ConfigFile string
	// KnownHostsFile is checked for the host key. Hosts missing from it
	// are accepted; a mismatching key is rejected. Empty disables checks.
	KnownHostsFile string
	// Timeout bounds the TCP connect.
	Timeout time.Duration
}

// Dial connects to host as user.
func (d *Dialer) Dial(host, user string) (boss.Conn, error) {
	ep, err := resolve(d.ConfigFile, host)
	if err != nil {
		return nil, err
	}

	var signers []ssh.Signer

	// If there's a running SSH Agent, use its Private keys
	if sock, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK")); err == nil {
		defer sock.Close()
		agentSigners, err := agent.NewClient(sock).Signers()
		if err == nil && len(agentSigners) > 0 {
			signers = append(signers, agentSigners...)
		}
	}

	if ep.identityFile != "" {
		data, err := os.ReadFile(ep.identityFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading identity file")
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing identity file %s", ep.identityFile)
		}
		signers = append(signers, signer)
	}

	callback, err := d.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signers...),
		},
		HostKeyCallback: callback,
		Timeout:         d.Timeout,
	}

	client, err := ssh.Dial("tcp", ep.addr, config)
	if err != nil {
		return nil, err
	}
	return &conn{client: client}, nil
}

func (d *Dialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.KnownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	check, err := knownhosts.New(d.KnownHostsFile)
	if os.IsNotExist(err) {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", d.KnownHostsFile)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			// Unknown host.
			return nil
		}
		return err
	}, nil
}

type conn struct {
	client *ssh.Client
}

func (c *conn) Start(command string) (boss.Command, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}

	if err := sess.Start(command); err != nil {
		sess.Close()
		return nil, err
	}
	return &remoteCommand{sess: sess, stdout: stdout, stderr: stderr}, nil
}

func (c *conn) Files() (boss.FileChannel, error) {
	client, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, err
	}
	return &files{client: client}, nil
}

func (c *conn) Close() error {
	return c.client.Close()
}

type remoteCommand struct {
	sess   *ssh.Session
	stdout io.Reader
	stderr io.Reader
}

func (c *remoteCommand) Stdout() io.Reader { return c.stdout }
func (c *remoteCommand) Stderr() io.Reader { return c.stderr }

func (c *remoteCommand) Wait() (int, error) {
	err := c.sess.Wait()
	if e, ok := err.(*ssh.ExitError); ok {
		return e.ExitStatus(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func (c *remoteCommand) Close() error {
	err := c.sess.Close()
	if err == io.EOF {
		// Already closed by the remote end after exit.
		return nil
	}
	return err
}
