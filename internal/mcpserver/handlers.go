package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleCheckAddress reports an address's registry record.
func (h *Handlers) HandleCheckAddress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := strings.TrimSpace(req.GetString("address", ""))
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	info, err := h.client.GetAddress(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check address: %v", err)), nil
	}
	return mcp.NewToolResultText(formatAddress(info)), nil
}

// HandleGetReporterRole reports whether an account is a reporter.
func (h *Handlers) HandleGetReporterRole(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := strings.TrimSpace(req.GetString("account", ""))
	if account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}

	info, err := h.client.GetReporter(ctx, account)
	if IsStatus(err, http.StatusNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf("%s is not a reporter.", account)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get reporter: %v", err)), nil
	}
	return mcp.NewToolResultText(formatReporter(info)), nil
}

// HandleListCategories lists the category taxonomy.
func (h *Handlers) HandleListCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cats, err := h.client.ListCategories(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list categories: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d categories:\n", len(cats)))
	for _, c := range cats {
		sb.WriteString(fmt.Sprintf("%2d. %s\n", c.ID, c.Name))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetRegistryStats summarizes the registry.
func (h *Handlers) HandleGetRegistryStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}
	return mcp.NewToolResultText(formatStats(stats)), nil
}

// HandleFlagAddress flags a new address.
func (h *Handlers) HandleFlagAddress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, category, risk, errResult := addressArgs(req)
	if errResult != nil {
		return errResult, nil
	}

	info, err := h.client.FlagAddress(ctx, address, category, risk)
	if IsStatus(err, http.StatusConflict) {
		return mcp.NewToolResultError(fmt.Sprintf("%s is already flagged. Use update_address to change its record.", address)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to flag address: %v", err)), nil
	}
	return mcp.NewToolResultText("Flagged.\n" + formatAddress(info)), nil
}

// HandleUpdateAddress replaces a flagged address's record.
func (h *Handlers) HandleUpdateAddress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, category, risk, errResult := addressArgs(req)
	if errResult != nil {
		return errResult, nil
	}

	info, err := h.client.UpdateAddress(ctx, address, category, risk)
	if IsStatus(err, http.StatusNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("%s is not flagged yet. Use flag_address first.", address)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update address: %v", err)), nil
	}
	return mcp.NewToolResultText("Updated.\n" + formatAddress(info)), nil
}

// addressArgs pulls the address/category/risk triple out of a write request.
// Range checks are left to the registry so its error order holds.
func addressArgs(req mcp.CallToolRequest) (string, string, int, *mcp.CallToolResult) {
	address := strings.TrimSpace(req.GetString("address", ""))
	if address == "" {
		return "", "", 0, mcp.NewToolResultError("address is required")
	}
	category := strings.TrimSpace(req.GetString("category", ""))
	if category == "" {
		return "", "", 0, mcp.NewToolResultError("category is required")
	}
	raw, ok := req.GetArguments()["risk"]
	if !ok {
		return "", "", 0, mcp.NewToolResultError("risk is required")
	}
	f, ok := raw.(float64)
	if !ok || f != float64(int(f)) {
		return "", "", 0, mcp.NewToolResultError("risk must be a whole number")
	}
	return address, category, int(f), nil
}

func formatAddress(info *AddressInfo) string {
	if !info.Flagged {
		return fmt.Sprintf("Address: %s\nStatus: not flagged (category None, risk 0/10)", info.Address)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Address: %s\n", info.Address))
	sb.WriteString("Status: FLAGGED\n")
	sb.WriteString(fmt.Sprintf("Category: %s\n", info.Category))
	sb.WriteString(fmt.Sprintf("Risk: %d/10 (%s)", info.Risk, riskLevel(info.Risk)))
	return sb.String()
}

func formatReporter(info *ReporterInfo) string {
	name := info.RoleName
	if name == "" {
		name = fmt.Sprintf("role %d", info.Role)
	}
	switch strings.ToLower(name) {
	case "authority":
		return fmt.Sprintf("%s is an Authority: it may flag addresses and manage reporters.", info.Account)
	case "reporter":
		return fmt.Sprintf("%s is a Reporter: it may flag and update addresses.", info.Account)
	default:
		return fmt.Sprintf("%s holds %s.", info.Account, name)
	}
}

func formatStats(s *Stats) string {
	var sb strings.Builder
	sb.WriteString("Registry Statistics\n")
	if s.Initialized {
		sb.WriteString(fmt.Sprintf("Owner: %s\n", s.Owner))
	} else {
		sb.WriteString("Owner: (not initialized)\n")
	}
	sb.WriteString(fmt.Sprintf("Reporters: %d (%d authorities)\n", s.Reporters, s.Authorities))
	sb.WriteString(fmt.Sprintf("Flagged addresses: %d", s.FlaggedAddresses))
	return sb.String()
}

func riskLevel(risk int) string {
	switch {
	case risk >= 8:
		return "severe"
	case risk >= 5:
		return "high"
	case risk >= 2:
		return "moderate"
	default:
		return "low"
	}
}
