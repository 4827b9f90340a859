package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/adamwasila/boss"
	"github.com/adamwasila/boss/detoken"
	"github.com/adamwasila/boss/ssh"
)

type options struct {
	root            string
	debug           bool
	project         string
	environment     string
	context         string
	sshConfig       string
	knownHosts      string
	onlyHosts       string
	exceptHosts     string
	continueOnError bool
	detokenBinary   string
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the boss command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err != nil {
		log.NewWithOptions(stderr, log.Options{}).Errorf("There was an error: %v", err)
	}
	return detoken.ExitCode(err)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:           "boss",
		Short:         "Push configuration and scripts to hosts over SSH and run them",
		Version:       boss.VERSION,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.root, "root", "", "BOSS root directory (default $BOSS_HOME, or the parent of the binary's directory)")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "D", false, "enable debug logging")

	deploy := &cobra.Command{
		Use:   "deploy",
		Short: "Configure the hosts of a context and run the common and project scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeployment(opts, stdout, stderr)
			if err != nil {
				return err
			}
			return d.Run()
		},
	}

	plan := &cobra.Command{
		Use:   "plan",
		Short: "Print the resolved hosts, users, paths and variables without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeployment(opts, stdout, stderr)
			if err != nil {
				return err
			}
			p, err := d.Plan()
			if err != nil {
				return err
			}
			return p.WriteYAML(stdout)
		},
	}

	exec := &cobra.Command{
		Use:   "exec [flags] -- <command>",
		Short: "Run an ad-hoc command on the hosts of a context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeployment(opts, stdout, stderr)
			if err != nil {
				return err
			}
			return d.Exec(strings.Join(args, " "), stdout, stderr)
		},
	}

	for _, cmd := range []*cobra.Command{deploy, plan, exec} {
		addTargetFlags(cmd, &opts)
	}

	root.AddCommand(deploy, plan, exec, detoken.NewCommand(stderr))
	return root
}

func addTargetFlags(cmd *cobra.Command, opts *options) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.project, "project", "p", "", "the project to deploy")
	flags.StringVarP(&opts.environment, "env", "e", "", "the environment to deploy to")
	flags.StringVarP(&opts.context, "context", "c", "", "the context of the project")
	flags.StringVar(&opts.sshConfig, "ssh-config", ssh.DefaultConfigFile(), "OpenSSH client config used to resolve hosts")
	flags.StringVar(&opts.knownHosts, "known-hosts", ssh.DefaultKnownHostsFile(), "known_hosts file checked for changed host keys")
	flags.StringVar(&opts.onlyHosts, "only", "", "filter hosts using regexp")
	flags.StringVar(&opts.exceptHosts, "except", "", "filter out hosts using regexp")
	flags.BoolVar(&opts.continueOnError, "continue-on-error", false, "keep deploying the remaining hosts after a host fails")
	flags.StringVar(&opts.detokenBinary, "detoken-binary", "", "boss binary to stage on the hosts for detokenization")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("env")
	cmd.MarkFlagRequired("context")
}

func newDeployment(opts options, stdout, stderr io.Writer) (*boss.Deployment, error) {
	layout := boss.Layout{Root: opts.root}
	if layout.Root == "" {
		var err error
		if layout, err = boss.DefaultLayout(); err != nil {
			return nil, err
		}
	}

	conf, err := boss.LoadConfig(layout, opts.project)
	if err != nil {
		return nil, err
	}
	continueOnError, err := conf.ContinueOnHostFailure()
	if err != nil {
		return nil, err
	}

	return &boss.Deployment{
		Layout: layout,
		Config: conf,
		Dialer: boss.HybridDialer{
			Remote: &ssh.Dialer{
				ConfigFile:     opts.sshConfig,
				KnownHostsFile: opts.knownHosts,
				Timeout:        30 * time.Second,
			},
		},
		Project:         opts.project,
		Environment:     opts.environment,
		Context:         opts.context,
		Only:            opts.onlyHosts,
		Except:          opts.exceptHosts,
		ContinueOnError: opts.continueOnError || continueOnError,
		DetokenBinary:   opts.detokenBinary,
		Log:             boss.NewLogger(stdout, stderr, opts.debug),
	}, nil
}
