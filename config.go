package boss

import (
	"os"
	"os/user"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Section and option names understood in the configuration files.
const (
	SectionBoss       = "BOSS"
	SectionProject    = "PROJECT"
	SectionVarMapping = "VAR MAPPING"

	OptionSSHUser           = "ssh user"
	OptionDeployPath        = "deploy path"
	OptionDefaultUser       = "default user"
	OptionDefaultDeployPath = "default deploy path"
	OptionTmpDir            = "tmp dir"
	OptionDetokenBinary     = "detoken binary"
	OptionOnHostFailure     = "on host failure"
)

// Config answers "what is the effective value of option X for environment
// Y" from the project and global stores. It never modifies them.
type Config struct {
	global  *ini.File
	project *ini.File
}

var loadOptions = ini.LoadOptions{
	Loose:           true,
	InsensitiveKeys: true,
}

// LoadConfig reads the global and project configuration files. Missing
// files are treated as empty.
func LoadConfig(layout Layout, project string) (*Config, error) {
	global, err := ini.LoadSources(loadOptions, layout.GlobalConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", layout.GlobalConfig())
	}
	proj, err := ini.LoadSources(loadOptions, layout.ProjectConfig(project))
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", layout.ProjectConfig(project))
	}
	return &Config{global: global, project: proj}, nil
}

// ParseConfig builds a Config from in-memory global and project files.
func ParseConfig(global, project []byte) (*Config, error) {
	g, err := ini.LoadSources(loadOptions, global)
	if err != nil {
		return nil, errors.Wrap(err, "parsing global config")
	}
	p, err := ini.LoadSources(loadOptions, project)
	if err != nil {
		return nil, errors.Wrap(err, "parsing project config")
	}
	return &Config{global: g, project: p}, nil
}

func lookup(f *ini.File, section, option string) (string, bool) {
	sec, err := f.GetSection(section)
	if err != nil {
		return "", false
	}
	key, err := sec.GetKey(option)
	if err != nil {
		return "", false
	}
	return key.String(), true
}

// Lookup searches the environment section of the project config, then its
// PROJECT section, then the BOSS section of the global config.
func (c *Config) Lookup(option, environment string) (string, bool) {
	if v, ok := lookup(c.project, environment, option); ok {
		return v, true
	}
	if v, ok := lookup(c.project, SectionProject, option); ok {
		return v, true
	}
	return lookup(c.global, SectionBoss, option)
}

// Value is Lookup with a fallback.
func (c *Config) Value(option, environment, def string) string {
	if v, ok := c.Lookup(option, environment); ok {
		return v
	}
	return def
}

// Global looks up a tool-wide option in the BOSS section only.
func (c *Config) Global(option string) (string, bool) {
	return lookup(c.global, SectionBoss, option)
}

// DefaultUser is the global "default user", or the user running boss.
func (c *Config) DefaultUser() string {
	if v, ok := c.Global(OptionDefaultUser); ok && v != "" {
		return v
	}
	return localUser()
}

// DeployPath is the deployment root for the environment; empty means the
// remote file system root.
func (c *Config) DeployPath(environment string) string {
	def, _ := c.Global(OptionDefaultDeployPath)
	return c.Value(OptionDeployPath, environment, def)
}

// TmpDir is where sessions create their ephemeral base directories.
func (c *Config) TmpDir() string {
	if v, ok := c.Global(OptionTmpDir); ok && v != "" {
		return v
	}
	return "/tmp"
}

// ContinueOnHostFailure reports the configured host failure policy.
func (c *Config) ContinueOnHostFailure() (bool, error) {
	v, ok := c.Global(OptionOnHostFailure)
	if !ok {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "abort":
		return false, nil
	case "continue":
		return true, nil
	}
	return false, ErrConfig{Reason: "unknown \"" + OptionOnHostFailure + "\" policy " + v}
}

func localUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
