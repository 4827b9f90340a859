package boss

import (
	"io"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const VERSION = "1.0"

// Deployment deploys one project to the hosts of one environment/context
// pair. Hosts are processed strictly one after another.
type Deployment struct {
	Layout      Layout
	Config      *Config
	Dialer      Dialer
	Project     string
	Environment string
	Context     string

	// Only and Except are regular expressions filtering hosts by name.
	Only   string
	Except string

	// ContinueOnError keeps deploying the remaining hosts after a host
	// fails. The run still returns every host error.
	ContinueOnError bool

	// DetokenBinary overrides the binary staged on hosts for
	// detokenization; see SessionOptions.
	DetokenBinary string

	Log *Logger
}

// Plan is everything resolved for one run before any host is contacted.
type Plan struct {
	ID            string          `yaml:"run_id"`
	Project       string          `yaml:"project"`
	Environment   string          `yaml:"environment"`
	Context       string          `yaml:"context"`
	Targets       []HostTarget    `yaml:"targets"`
	Mapping       VariableMapping `yaml:"var_mapping,omitempty"`
	Env           Environment     `yaml:"env"`
	TmpDir        string          `yaml:"tmp_dir"`
	DetokenBinary string          `yaml:"detoken_binary,omitempty"`
}

func (d *Deployment) logger() *Logger {
	if d.Log == nil {
		d.Log = DiscardLogger()
	}
	return d.Log
}

// Plan resolves the targets, variables and paths of the run. Any failure
// here is a configuration error: nothing has been touched yet.
func (d *Deployment) Plan() (*Plan, error) {
	if d.Config == nil {
		return nil, ErrConfig{Reason: "no configuration loaded"}
	}

	targets, err := d.Config.HostTargets(d.Environment, d.Context)
	if err != nil {
		return nil, err
	}
	targets, err = FilterHosts(targets, d.Only, d.Except)
	if err != nil {
		return nil, err
	}

	mapping := d.Config.VariableMapping()

	bin := d.DetokenBinary
	if bin == "" {
		bin, _ = d.Config.Global(OptionDetokenBinary)
	}

	return &Plan{
		ID:            uuid.NewString(),
		Project:       d.Project,
		Environment:   d.Environment,
		Context:       d.Context,
		Targets:       targets,
		Mapping:       mapping,
		Env:           NewEnvironment(d.Project, d.Environment, d.Context, mapping),
		TmpDir:        d.Config.TmpDir(),
		DetokenBinary: bin,
	}, nil
}

func (d *Deployment) sessionOptions(plan *Plan, log *Logger) SessionOptions {
	return SessionOptions{
		Layout:        d.Layout,
		Project:       plan.Project,
		Environment:   plan.Environment,
		Context:       plan.Context,
		Env:           plan.Env,
		TmpDir:        plan.TmpDir,
		DetokenBinary: plan.DetokenBinary,
		Log:           log,
	}
}

// Run deploys to every planned host: configuration first, then the common
// scripts, then the project scripts.
func (d *Deployment) Run() error {
	plan, err := d.Plan()
	if err != nil {
		return err
	}
	log := d.logger().With("run", plan.ID[:8])

	return d.eachHost(plan, log, func(sess *Session) error {
		if err := sess.Configure(sess.Target.DeployPath); err != nil {
			return errors.Wrapf(err, "configuring %s", sess.Target.Host)
		}
		if err := sess.DeployScripts(d.Layout.CommonScripts()); err != nil {
			return err
		}
		return sess.DeployScripts(d.Layout.ProjectScripts(plan.Project))
	})
}

// Exec runs command on every planned host, copying the host-prefixed
// output to stdout and stderr. A non-zero exit is a host failure. Progress
// messages go to the error stream so stdout carries command output only.
func (d *Deployment) Exec(command string, stdout, stderr io.Writer) error {
	plan, err := d.Plan()
	if err != nil {
		return err
	}
	log := d.logger().OnStderr().With("run", plan.ID[:8])

	return d.eachHost(plan, log, func(sess *Session) error {
		status, err := sess.Exec(command, stdout, stderr)
		if err != nil {
			return errors.Wrapf(err, "%s: running %q", sess.Target.Host, command)
		}
		if status != 0 {
			return ErrScript{Host: sess.Target.Host, Script: command, Status: status}
		}
		return nil
	})
}

func (d *Deployment) eachHost(plan *Plan, log *Logger, fn func(*Session) error) error {
	var result *multierror.Error
	for _, target := range plan.Targets {
		err := d.withSession(plan, log, target, fn)
		if err == nil {
			continue
		}
		if !d.ContinueOnError || !IsHostFailure(err) {
			return err
		}
		log.Errorf("There was an error deploying to host %q: %v", target.Host, err)
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (d *Deployment) withSession(plan *Plan, log *Logger, target HostTarget, fn func(*Session) error) error {
	sess, err := Open(d.Dialer, target, d.sessionOptions(plan, log))
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warnf("%s: cleanup of %s failed: %v", target.Host, sess.BaseDir, err)
		}
	}()
	return fn(sess)
}
