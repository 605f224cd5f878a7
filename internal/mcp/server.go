package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
	"github.com/groupguard/groupguard/internal/biz/usecase"
)

// PolicyReader resolves effective and configured policies
type PolicyReader interface {
	Resolve(ctx context.Context, groupID string) (domain.Policy, error)
	Override(ctx context.Context, groupID string) (domain.PolicyOverride, error)
}

// Deps are the moderation components exposed to operators
type Deps struct {
	Policies  PolicyReader
	Overrides repo.OverrideRepo
	Ledger    *usecase.ViolationLedger
	Mutes     repo.MuteRepo
}

// Server exposes moderation admin tools over MCP
type Server struct {
	server *mcp.Server
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewServer creates the admin MCP server and registers its tools
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "groupguard-admin",
		Version: "v1.0.0",
	}, nil)

	s := &Server{
		server: server,
		deps:   deps,
		logger: logger.With("component", "mcp"),
		now:    time.Now,
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server, e.g. to connect a transport
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Handler serves the tools over streamable HTTP
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// registerTools registers all admin tools
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_effective_policy",
		Description: "Show the moderation policy a group currently runs with, after defaults, policy.yaml and stored overrides are merged.",
	}, s.handleGetEffectivePolicy)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_group_override",
		Description: "Change moderation settings of one group at runtime. Only the given fields change; the rest keep their current value. Durations are in seconds.",
	}, s.handleSetGroupOverride)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "clear_group_override",
		Description: "Drop the runtime settings of a group so it falls back to policy.yaml and the defaults.",
	}, s.handleClearGroupOverride)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_violation_counts",
		Description: "Count recent violations of a group, and of one member when user_id is given, inside the group's time window.",
	}, s.handleGetViolationCounts)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_active_mutes",
		Description: "List timed member mutes that have not been lifted yet. Leave group_id empty for all groups.",
	}, s.handleListActiveMutes)
}
