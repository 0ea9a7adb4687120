package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all registry tools
// registered. Write tools are only added when an API key is configured.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("riskproxy", version)
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolCheckAddress, h.HandleCheckAddress)
	s.AddTool(ToolGetReporterRole, h.HandleGetReporterRole)
	s.AddTool(ToolListCategories, h.HandleListCategories)
	s.AddTool(ToolGetRegistryStats, h.HandleGetRegistryStats)

	if cfg.APIKey != "" {
		s.AddTool(ToolFlagAddress, h.HandleFlagAddress)
		s.AddTool(ToolUpdateAddress, h.HandleUpdateAddress)
	}

	return s
}
