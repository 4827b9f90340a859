package boss

import (
	"fmt"
	"regexp"
	"strings"
)

// HostTarget is one host to deploy to.
type HostTarget struct {
	Host       string `yaml:"host"`
	User       string `yaml:"user"`
	DeployPath string `yaml:"deploy_path,omitempty"`
}

func (t HostTarget) String() string {
	return t.User + "@" + t.Host
}

// HostTargets resolves the comma-separated host list configured for
// context in environment. Entries have the form "[user@]host"; bare hosts
// get the "ssh user" of the environment, falling back to the default user.
// The deploy path is resolved once and shared by every target.
func (c *Config) HostTargets(environment, context string) ([]HostTarget, error) {
	raw, ok := c.Lookup(context, environment)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrConfig{Reason: fmt.Sprintf("there appears to be no such context (%s) for the environment (%s)", context, environment)}
	}

	defaultUser := c.Value(OptionSSHUser, environment, c.DefaultUser())
	deployPath := c.DeployPath(environment)

	var targets []HostTarget
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		target, err := parseHostEntry(entry, defaultUser)
		if err != nil {
			return nil, err
		}
		target.DeployPath = deployPath
		targets = append(targets, target)
	}

	if len(targets) == 0 {
		return nil, ErrConfig{Reason: fmt.Sprintf("no hosts configured for context (%s) in the environment (%s)", context, environment)}
	}
	return targets, nil
}

// parseHostEntry parses "[user@]host". Path and port suffixes are not part
// of the grammar; the deploy path comes from the configuration.
func parseHostEntry(entry, defaultUser string) (HostTarget, error) {
	invalid := func(reason string) error {
		return ErrConfig{Reason: fmt.Sprintf("invalid host entry %q: %s", entry, reason)}
	}

	if strings.Contains(entry, ":") {
		return HostTarget{}, invalid(`inline "host:path" suffixes are not supported, use "deploy path"`)
	}

	parts := strings.Split(entry, "@")
	switch len(parts) {
	case 1:
		return HostTarget{Host: parts[0], User: defaultUser}, nil
	case 2:
		user, host := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if user == "" || host == "" {
			return HostTarget{}, invalid("empty user or host")
		}
		return HostTarget{Host: host, User: user}, nil
	}
	return HostTarget{}, invalid("more than one '@'")
}

// FilterHosts keeps the targets whose host matches only (if set) and
// does not match except (if set).
func FilterHosts(targets []HostTarget, only, except string) ([]HostTarget, error) {
	if only == "" && except == "" {
		return targets, nil
	}

	var onlyExpr, exceptExpr *regexp.Regexp
	var err error
	if only != "" {
		if onlyExpr, err = regexp.Compile(only); err != nil {
			return nil, err
		}
	}
	if except != "" {
		if exceptExpr, err = regexp.Compile(except); err != nil {
			return nil, err
		}
	}

	var filtered []HostTarget
	for _, t := range targets {
		if onlyExpr != nil && !onlyExpr.MatchString(t.Host) {
			continue
		}
		if exceptExpr != nil && exceptExpr.MatchString(t.Host) {
			continue
		}
		filtered = append(filtered, t)
	}
	if len(filtered) == 0 {
		return nil, ErrConfig{Reason: fmt.Sprintf("no hosts match --only %q / --except %q", only, except)}
	}
	return filtered, nil
}
