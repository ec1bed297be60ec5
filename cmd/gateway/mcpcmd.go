package main

import (
	"fmt"

	"github.com/vllora/gateway/config"
)

// MCPCmd manages the set of MCP servers the gateway's tool loop can dispatch
// to, per the "mcp …" CLI surface in spec §6.
type MCPCmd struct {
	Add    MCPAddCmd    `cmd:"" help:"Register an MCP server."`
	Remove MCPRemoveCmd `cmd:"" help:"Remove a registered MCP server."`
	List   MCPListCmd   `cmd:"" help:"List registered MCP servers."`
}

// MCPAddCmd registers a new MCP server entry.
type MCPAddCmd struct {
	Name       string `arg:"" help:"Server name, referenced by ToolSpec.MCPServer."`
	Endpoint   string `arg:"" help:"HTTP-streamable endpoint URL."`
	AuthHeader string `help:"Authorization header value sent with every call." default:""`
}

func (c *MCPAddCmd) Run(cli *CLI) error {
	path := cli.configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	for i, existing := range cfg.MCPServers {
		if existing.Name == c.Name {
			cfg.MCPServers[i] = config.MCPServerEntry{Name: c.Name, Endpoint: c.Endpoint, AuthHeader: c.AuthHeader}
			return config.Save(cfg, path)
		}
	}
	cfg.MCPServers = append(cfg.MCPServers, config.MCPServerEntry{Name: c.Name, Endpoint: c.Endpoint, AuthHeader: c.AuthHeader})
	return config.Save(cfg, path)
}

// MCPRemoveCmd removes a previously registered MCP server by name.
type MCPRemoveCmd struct {
	Name string `arg:"" help:"Server name to remove."`
}

func (c *MCPRemoveCmd) Run(cli *CLI) error {
	path := cli.configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	out := cfg.MCPServers[:0]
	for _, existing := range cfg.MCPServers {
		if existing.Name != c.Name {
			out = append(out, existing)
		}
	}
	cfg.MCPServers = out
	return config.Save(cfg, path)
}

// MCPListCmd prints every registered MCP server.
type MCPListCmd struct{}

func (c *MCPListCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.configPath())
	if err != nil {
		return err
	}
	if len(cfg.MCPServers) == 0 {
		fmt.Println("no MCP servers registered")
		return nil
	}
	for _, s := range cfg.MCPServers {
		fmt.Printf("%s\t%s\n", s.Name, s.Endpoint)
	}
	return nil
}
