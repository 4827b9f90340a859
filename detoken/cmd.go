package detoken

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Exit codes of the detoken command.
const (
	ExitOK         = 0
	ExitUsage      = 1
	ExitOpenOutput = 2
	ExitCycle      = 3
)

// ExitCode maps an error returned by the detoken command to its exit code.
func ExitCode(err error) int {
	switch errors.Cause(err).(type) {
	case nil:
		return ExitOK
	case ErrOpenOutput:
		return ExitOpenOutput
	case ErrCycle:
		return ExitCycle
	}
	return ExitUsage
}

// NewCommand returns the "detoken" command. It logs to stderr.
func NewCommand(stderr io.Writer) *cobra.Command {
	var (
		configFile  string
		templates   string
		destination string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "detoken -c FILE -t DIR -d DIR",
		Short: "Render a template tree, replacing @TOKEN@ with values from a properties file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewWithOptions(stderr, log.Options{Level: log.InfoLevel})
			if verbose {
				logger.SetLevel(log.DebugLevel)
			}
			return Run(configFile, templates, destination, logger)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "configuration properties file that contains TOKEN=VALUE lines")
	flags.StringVarP(&templates, "templates", "t", "", "template tree that contains the tokenised files")
	flags.StringVarP(&destination, "destination", "d", "", "destination directory to write the final configuration tree")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log every parsed key and replacement")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("templates")
	cmd.MarkFlagRequired("destination")

	return cmd
}

// Main runs the detoken command with args and returns its exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	cmd := NewCommand(stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	code := ExitCode(err)
	if err != nil {
		log.NewWithOptions(stderr, log.Options{}).Errorf("%v", err)
	}
	return code
}
