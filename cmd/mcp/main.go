// riskproxy MCP server: exposes registry lookups as MCP tools for LLMs.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/riskproxy/internal/mcpserver"
)

// Version is set at build time.
var Version = "dev"

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("RISKPROXY_API_URL", "http://localhost:8080"),
		APIKey: os.Getenv("RISKPROXY_API_KEY"),
	}
	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "RISKPROXY_API_KEY not set, write tools disabled")
	}

	s := mcpserver.NewMCPServer(cfg, Version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
