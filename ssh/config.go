package ssh

import (
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mikkeloscar/sshconfig"
	"github.com/pkg/errors"
)

const defaultPort = 22

type endpoint struct {
	addr         string
	identityFile string
}

// DefaultConfigFile is the user's OpenSSH client config.
func DefaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "config")
}

// DefaultKnownHostsFile is the user's known_hosts file.
func DefaultKnownHostsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

// resolve maps host through the first matching entry of the SSH config
// file, if any.
func resolve(configFile, host string) (endpoint, error) {
	ep := endpoint{addr: net.JoinHostPort(host, strconv.Itoa(defaultPort))}
	if configFile == "" {
		return ep, nil
	}

	entries, err := sshconfig.ParseSSHConfig(configFile)
	if os.IsNotExist(err) {
		return ep, nil
	}
	if err != nil {
		return ep, errors.Wrapf(err, "parsing %s", configFile)
	}

	for _, entry := range entries {
		if !matchHost(entry.Host, host) {
			continue
		}
		hostname := host
		if entry.HostName != "" {
			hostname = entry.HostName
		}
		port := defaultPort
		if entry.Port != 0 {
			port = entry.Port
		}
		ep.addr = net.JoinHostPort(hostname, strconv.Itoa(port))
		ep.identityFile = expandHome(entry.IdentityFile)
		break
	}
	return ep, nil
}

func matchHost(patterns []string, host string) bool {
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "!") {
			continue
		}
		if ok, _ := path.Match(pattern, host); ok {
			return true
		}
	}
	return false
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
