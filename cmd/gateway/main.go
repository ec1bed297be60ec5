// Command gateway is the vllora LLM gateway's CLI entry point: `serve` runs
// the chat-completions endpoint, `mcp` manages registered MCP servers, per
// the CLI surface in spec §6.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/vllora/gateway/config"
)

// CLI is the top-level command structure, grounded on the teacher pack's own
// kong.Parse-driven CLI shape.
type CLI struct {
	Config string `help:"Path to the gateway's YAML config file." type:"path"`

	Serve ServeCmd `cmd:"" help:"Run the chat-completions gateway server."`
	MCP   MCPCmd   `cmd:"" help:"Manage registered MCP servers."`
}

func (c *CLI) configPath() string {
	if c.Config != "" {
		return c.Config
	}
	return config.ConfigPath()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("gateway"),
		kong.Description("vllora LLM gateway"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a top-level Run error onto the exit codes spec §6 documents:
// 1 generic failure, 2 config error, 3 bind failure.
func exitCode(err error) int {
	msg := err.Error()
	switch {
	case containsAny(msg, "parse config", "load config", "create db directory"):
		return 2
	case containsAny(msg, "bind", "address already in use", "listen"):
		return 3
	default:
		return 1
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
