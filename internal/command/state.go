package command

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/cli"

	"github.com/kuitang/mango3-e2e/internal/auth"
	"github.com/kuitang/mango3-e2e/internal/storagestate"
	"github.com/kuitang/mango3-e2e/internal/topology"
)

// StateCommand groups the storage-state subcommands.
type StateCommand struct {
	*Meta
}

func (c *StateCommand) Synopsis() string {
	return "Inspect storage-state files written by browser suites"
}

func (c *StateCommand) Help() string {
	return `Usage: mango3-e2e state <subcommand> <path>

  Inspect the Playwright storage-state files that registration and login
  steps write and authenticated fixtures read. Paths are usually
  $E2E_STATE_DIR/<suite>/<role>.json.`
}

func (c *StateCommand) Run([]string) int {
	return cli.RunResultHelp
}

// StateShowCommand prints a redacted summary of a storage-state file.
type StateShowCommand struct {
	*Meta
}

func (c *StateShowCommand) Synopsis() string {
	return "Print a redacted summary of a storage-state file"
}

func (c *StateShowCommand) Help() string {
	return `Usage: mango3-e2e state show <path>

  Print the cookies and localStorage origins of a storage-state file.
  Cookie values are replaced by fingerprints.`
}

func (c *StateShowCommand) Run(args []string) int {
	if len(args) != 1 {
		c.UI.Error(c.Help())
		return 1
	}
	state, err := storagestate.LoadFile(c.Fs, args[0])
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	var b strings.Builder
	writeSummary(&b, state.Summarize(time.Now()))
	c.UI.Output(strings.TrimRight(b.String(), "\n"))
	return 0
}

func writeSummary(w io.Writer, sum storagestate.Summary) {
	fmt.Fprintf(w, "Cookies (%d):\n", len(sum.Cookies))
	for _, cs := range sum.Cookies {
		status := ""
		if cs.Expired {
			status = " EXPIRED"
		}
		fmt.Fprintf(w, "  %s  domain=%s path=%s value=%s expires=%s%s\n",
			cs.Name, cs.Domain, cs.Path, cs.Fingerprint, cs.Expires, status)
	}
	fmt.Fprintf(w, "Origins (%d):\n", len(sum.Origins))
	for _, origin := range topology.SortedKeys(sum.Origins) {
		fmt.Fprintf(w, "  %s  localStorage=%d\n", origin, sum.Origins[origin])
	}
}

// StateCheckCommand fails unless a file holds a live session.
type StateCheckCommand struct {
	*Meta

	flagCookie string
	now        func() time.Time
}

func (c *StateCheckCommand) Synopsis() string {
	return "Fail unless a storage-state file holds a live session"
}

func (c *StateCheckCommand) Help() string {
	return `Usage: mango3-e2e state check [options] <path>

  Exit 0 when the file exists, is a valid storage state, and carries an
  unexpired session cookie. Run it before authenticated suites to surface
  a missing producer step early.` + "\n\n" + flagHelp(c.flags())
}

func (c *StateCheckCommand) flags() *flag.FlagSet {
	fs := flag.NewFlagSet("state check", flag.ContinueOnError)
	fs.StringVar(&c.flagCookie, "cookie", auth.SessionCookieName, "Name of the session cookie that must be live")
	return fs
}

func (c *StateCheckCommand) Run(args []string) int {
	fs := c.flags()
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if fs.NArg() != 1 {
		c.UI.Error(c.Help())
		return 1
	}
	path := fs.Arg(0)

	state, err := storagestate.LoadFile(c.Fs, path)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	now := time.Now()
	if c.now != nil {
		now = c.now()
	}
	for _, cookie := range state.LiveCookies(now) {
		if cookie.Name == c.flagCookie {
			c.UI.Output(fmt.Sprintf("%s: live %s cookie for %s", path, cookie.Name, cookie.Domain))
			return 0
		}
	}
	if _, ok := state.Cookie(c.flagCookie); ok {
		c.UI.Error(fmt.Sprintf("%s: %s cookie has expired; rerun the step that writes it", path, c.flagCookie))
	} else {
		c.UI.Error(fmt.Sprintf("%s: no %s cookie; the producing step did not sign in", path, c.flagCookie))
	}
	return 2
}

// StateClearCommand deletes a storage-state file.
type StateClearCommand struct {
	*Meta
}

func (c *StateClearCommand) Synopsis() string {
	return "Delete a storage-state file"
}

func (c *StateClearCommand) Help() string {
	return `Usage: mango3-e2e state clear <path>

  Delete a storage-state file so the next run must produce it again.
  A missing file is not an error.`
}

func (c *StateClearCommand) Run(args []string) int {
	if len(args) != 1 {
		c.UI.Error(c.Help())
		return 1
	}
	if err := storagestate.RemoveFile(c.Fs, args[0]); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Output("Removed " + args[0])
	return 0
}

func flagHelp(fs *flag.FlagSet) string {
	var b strings.Builder
	b.WriteString("Options:\n\n")
	fs.VisitAll(func(f *flag.Flag) {
		fmt.Fprintf(&b, "  -%s=%q\n      %s\n", f.Name, f.DefValue, f.Usage)
	})
	return strings.TrimRight(b.String(), "\n")
}
