package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the riskproxy MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolCheckAddress = mcp.NewTool("check_address",
	mcp.WithDescription(
		"Look up an account in the address risk registry. "+
			"Returns whether it is flagged, its category (e.g. Mixer, Scam, Sanctions) and a risk score from 0 to 10. "+
			"Use this before sending funds to or accepting funds from an address."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The account to check: a 0x EVM address or a named account such as 'mixer.near'")),
)

var ToolGetReporterRole = mcp.NewTool("get_reporter_role",
	mcp.WithDescription(
		"Check whether an account is an approved reporter in the registry, and whether it is a plain "+
			"reporter (may flag addresses) or an authority (may also manage reporters)."),
	mcp.WithString("account",
		mcp.Required(),
		mcp.Description("The account to check")),
)

var ToolListCategories = mcp.NewTool("list_categories",
	mcp.WithDescription("List every risk category the registry can assign to an address."),
)

var ToolGetRegistryStats = mcp.NewTool("get_registry_stats",
	mcp.WithDescription("Show registry-wide counts: owner, reporters, authorities and flagged addresses."),
)

var ToolFlagAddress = mcp.NewTool("flag_address",
	mcp.WithDescription(
		"Flag a new address in the registry. Requires the configured API key to belong to a reporter. "+
			"Fails if the address is already flagged; use update_address for that."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The account to flag")),
	mcp.WithString("category",
		mcp.Required(),
		mcp.Description("Risk category name, see list_categories")),
	mcp.WithNumber("risk",
		mcp.Required(),
		mcp.Description("Risk score from 0 (none) to 10 (highest)"),
		mcp.Min(0), mcp.Max(10)),
)

var ToolUpdateAddress = mcp.NewTool("update_address",
	mcp.WithDescription(
		"Replace the category and risk of an address that is already flagged. "+
			"Requires the configured API key to belong to a reporter."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The flagged account")),
	mcp.WithString("category",
		mcp.Required(),
		mcp.Description("Risk category name, see list_categories")),
	mcp.WithNumber("risk",
		mcp.Required(),
		mcp.Description("Risk score from 0 (none) to 10 (highest)"),
		mcp.Min(0), mcp.Max(10)),
)
