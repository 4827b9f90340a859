package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"text/template"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// mockServer is an in-process SSH server that runs exec requests with the
// local shell and serves the sftp subsystem from the local file system.
type mockServer struct {
	addr       string
	hostKey    ssh.PublicKey
	configFile string
}

// setupMockServer generates a client key pair, starts a server that only
// accepts that key, and writes an SSH config naming it "server0".
func setupMockServer(t *testing.T) *mockServer {
	t.Helper()
	dir := t.TempDir()

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	identityFile := filepath.Join(dir, "gotest_private_key")
	privateKeyBlock := pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(clientKey),
	}
	require.NoError(t, os.WriteFile(identityFile, pem.EncodeToMemory(&privateKeyBlock), 0600))

	authorized, err := ssh.NewPublicKey(&clientKey.PublicKey)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			if string(pubKey.Marshal()) == string(authorized.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", c.User())
		},
	}
	hostSigner, _, err := generateHostKey()
	require.NoError(t, err)
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, errors.Wrap(err, "failed to listen for connection"))
	t.Cleanup(func() { listener.Close() })
	go sshListen(config, listener)

	srv := &mockServer{
		addr:       listener.Addr().String(),
		hostKey:    hostSigner.PublicKey(),
		configFile: filepath.Join(dir, "ssh_config"),
	}
	require.NoError(t, writeSSHConfigFile(srv.configFile, identityFile, srv.addr))
	return srv
}

func sshListen(config *ssh.ServerConfig, listener net.Listener) {
	for {
		nConn, err := listener.Accept()
		if err != nil {
			return
		}
		go serveConn(config, nConn)
	}
}

func serveConn(config *ssh.ServerConfig, nConn net.Conn) {
	// Before use, a handshake must be performed on the incoming net.Conn.
	sconn, chans, reqs, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		nConn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go serveSession(channel, requests)
	}
}

func serveSession(channel ssh.Channel, in <-chan *ssh.Request) {
	for req := range in {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go runCommand(channel, payload.Command)

		case "subsystem":
			var payload struct{ Name string }
			ssh.Unmarshal(req.Payload, &payload)
			if payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go func() {
				defer channel.Close()
				server, err := sftp.NewServer(channel)
				if err != nil {
					return
				}
				server.Serve()
			}()

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func runCommand(channel ssh.Channel, command string) {
	defer channel.Close()

	cmd := exec.Command("sh", "-c", command)
	cmd.Stdout = channel
	cmd.Stderr = channel.Stderr()

	status := 0
	if err := cmd.Run(); err != nil {
		status = 255
		if exitErr, ok := err.(*exec.ExitError); ok {
			status = exitErr.ExitCode()
		}
	}
	channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
}

func writeSSHConfigFile(configFile, identityFile, addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	sshConfigTemplate := `
Host server0
  HostName {{.HostName}}
  Port {{.Port}}
{{if .IdentityFile}}  IdentityFile {{.IdentityFile}}{{end}}
`
	tmpl, err := template.New("ssh_config").Parse(sshConfigTemplate)
	if err != nil {
		return err
	}

	file, err := os.Create(configFile)
	if err != nil {
		return err
	}
	defer file.Close()

	portNum, _ := strconv.Atoi(port)
	return tmpl.Execute(file, struct {
		HostName     string
		Port         int
		IdentityFile string
	}{host, portNum, identityFile})
}

func generateHostKey() (ssh.Signer, ssh.PublicKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, nil, err
	}
	return signer, signer.PublicKey(), nil
}
