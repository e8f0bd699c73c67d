// Package command implements the mango3-e2e CLI: serving the reference
// application and inspecting the storage-state files shared by browser
// suites.
package command

import (
	"bufio"
	"io"
	"os"

	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/kuitang/mango3-e2e/internal/obs"
)

// Version is set at build time with -ldflags "-X ...command.Version=...".
var Version = "dev"

// Meta is the state shared by every command.
type Meta struct {
	UI cli.Ui
	Fs afero.Fs
}

// Commands returns the command table for m.
func Commands(m *Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"serve": func() (cli.Command, error) {
			return &ServeCommand{Meta: m}, nil
		},
		"state": func() (cli.Command, error) {
			return &StateCommand{Meta: m}, nil
		},
		"state show": func() (cli.Command, error) {
			return &StateShowCommand{Meta: m}, nil
		},
		"state check": func() (cli.Command, error) {
			return &StateCheckCommand{Meta: m}, nil
		},
		"state clear": func() (cli.Command, error) {
			return &StateClearCommand{Meta: m}, nil
		},
		"topology": func() (cli.Command, error) {
			return &TopologyCommand{Meta: m}, nil
		},
		"version": func() (cli.Command, error) {
			return &VersionCommand{Meta: m}, nil
		},
	}
}

// Main runs the CLI with the given arguments and returns the exit code.
func Main(args []string) int {
	return Run(args, os.Stdin, os.Stdout, os.Stderr, afero.NewOsFs())
}

// Run is Main with explicit streams and filesystem.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer, fs afero.Fs) int {
	obs.Init()
	cliName := "mango3-e2e"
	if len(args) > 0 {
		cliName = args[0]
		args = args[1:]
	}
	if len(args) == 1 && (args[0] == "-version" || args[0] == "-v") {
		args = []string{"version"}
	}

	meta := &Meta{
		UI: &cli.BasicUi{
			Reader:      bufio.NewReader(stdin),
			Writer:      stdout,
			ErrorWriter: stderr,
		},
		Fs: fs,
	}

	c := &cli.CLI{
		Name:        cliName,
		Args:        args,
		Version:     Version,
		Commands:    Commands(meta),
		HelpWriter:  stdout,
		ErrorWriter: stderr,
	}
	code, err := c.Run()
	if err != nil {
		meta.UI.Error(err.Error())
		return 1
	}
	return code
}

// VersionCommand prints the build version.
type VersionCommand struct {
	*Meta
}

func (c *VersionCommand) Synopsis() string { return "Print the version" }

func (c *VersionCommand) Help() string {
	return "Usage: mango3-e2e version\n\n  Print the version of this binary."
}

func (c *VersionCommand) Run([]string) int {
	c.UI.Output("mango3-e2e " + Version)
	return 0
}
