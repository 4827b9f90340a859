package boss

import (
	"sort"
	"strings"

	"github.com/alessio/shellescape"
)

// Base variables handed to every remote script.
const (
	VarProject     = "PROJECT"
	VarEnvironment = "ENVIRONMENT"
	VarContext     = "CONTEXT"
)

// VariableMapping maps an extra variable name to the base variable whose
// value it copies, e.g. APP=PROJECT.
type VariableMapping map[string]string

// VariableMapping reads the global VAR MAPPING section. A missing section
// is an empty mapping.
func (c *Config) VariableMapping() VariableMapping {
	m := VariableMapping{}
	sec, err := c.global.GetSection(SectionVarMapping)
	if err != nil {
		return m
	}
	for _, key := range sec.Keys() {
		m[strings.ToUpper(key.Name())] = strings.ToUpper(strings.TrimSpace(key.String()))
	}
	return m
}

// Environment is the set of variables exported to remote scripts.
type Environment map[string]string

// NewEnvironment builds the base variables and applies the mapping. A
// mapping to an unknown variable yields an empty value.
func NewEnvironment(project, environment, context string, mapping VariableMapping) Environment {
	env := Environment{
		VarProject:     project,
		VarEnvironment: environment,
		VarContext:     context,
	}
	base := Environment{}
	for k, v := range env {
		base[k] = v
	}
	for name, source := range mapping {
		env[strings.ToUpper(name)] = base[strings.ToUpper(source)]
	}
	return env
}

// Prefix renders the environment as `NAME=value ...` to put in front of a
// remote command, sorted by name and shell-quoted.
func (e Environment) Prefix() string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+shellescape.Quote(e[name]))
	}
	return strings.Join(pairs, " ")
}
