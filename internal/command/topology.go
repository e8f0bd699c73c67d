package command

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/kuitang/mango3-e2e/internal/config"
	"github.com/kuitang/mango3-e2e/internal/topology"
)

// TopologyCommand prints the resolved origin table.
type TopologyCommand struct {
	*Meta

	flagFile   string
	flagDomain string
	flagSecure bool
	flagPort   int
}

func (c *TopologyCommand) Synopsis() string {
	return "Print the origins of a deployment"
}

func (c *TopologyCommand) Help() string {
	return `Usage: mango3-e2e topology [options]

  Print the logical origin names and base URLs the harness resolves,
  from a YAML topology file or from a domain. Defaults come from the
  E2E_* environment variables.` + "\n\n" + flagHelp(c.flags(&config.HarnessConfig{Domain: topology.DefaultDomain}))
}

func (c *TopologyCommand) flags(defaults *config.HarnessConfig) *flag.FlagSet {
	fs := flag.NewFlagSet("topology", flag.ContinueOnError)
	fs.StringVar(&c.flagFile, "file", defaults.TopologyFile, "YAML topology file")
	fs.StringVar(&c.flagDomain, "domain", defaults.Domain, "Base domain")
	fs.BoolVar(&c.flagSecure, "secure", defaults.Secure, "Use https origins")
	fs.IntVar(&c.flagPort, "port", defaults.Port, "Port in origin URLs (0 = scheme default)")
	return fs
}

func (c *TopologyCommand) Run(args []string) int {
	defaults, err := config.LoadHarnessConfig()
	if err != nil {
		c.UI.Error(fmt.Sprintf("Configuration error: %v", err))
		return 1
	}
	fs := c.flags(defaults)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	var topo *topology.Topology
	if c.flagFile != "" {
		data, err := afero.ReadFile(c.Fs, c.flagFile)
		if err != nil {
			c.UI.Error(err.Error())
			return 1
		}
		topo, err = topology.Load(bytes.NewReader(data))
		if err != nil {
			c.UI.Error(err.Error())
			return 1
		}
	} else {
		topo = topology.New(c.flagDomain, c.flagSecure, c.flagPort)
		if err := topo.Validate(); err != nil {
			c.UI.Error(err.Error())
			return 1
		}
	}
	c.UI.Output(strings.TrimRight(topo.Table(), "\n"))
	return 0
}
