// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only LightAuth tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"

	"github.com/starford/lightauth/internal/models"
	"github.com/starford/lightauth/internal/otp"
	"github.com/starford/lightauth/internal/otpuri"
	"github.com/starford/lightauth/internal/vaultservice"
)

// Server wraps the MCP server with LightAuth tools.
type Server struct {
	mcp *server.MCPServer
	svc *vaultservice.Service
	now func() time.Time
}

type accountEntry struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Issuer string `json:"issuer"`
}

// New creates a new MCP server with all tools registered. svc must be
// unlocked for the account tools to succeed.
func New(svc *vaultservice.Service, version string) *Server {
	s := &Server{svc: svc, now: time.Now}

	s.mcp = server.NewMCPServer(
		"LightAuth",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_accounts",
		mcp.WithDescription("List enrolled accounts in stored order. Secrets are not included."),
	), s.listAccounts)

	s.mcp.AddTool(mcp.NewTool("get_code",
		mcp.WithDescription("Current 6-digit TOTP code for an account with the seconds left in its 30s window."),
		mcp.WithString("index", mcp.Required(), mcp.Description("Account index from list_accounts")),
	), s.getCode)

	s.mcp.AddTool(mcp.NewTool("parse_otp_uri",
		mcp.WithDescription("Parse an otpauth:// provisioning URI into name, issuer and secret. "+
			"Nothing is stored. See the lauth://uri-format resource for the accepted format."),
		mcp.WithString("uri", mcp.Required(), mcp.Description("otpauth URI, e.g. from a QR code")),
	), s.parseURI)

	s.mcp.AddTool(mcp.NewTool("generate_secret",
		mcp.WithDescription("Generate a random 32-character base32 secret."),
	), s.generateSecret)

	s.mcp.AddResource(
		mcp.NewResource("lauth://uri-format", "Provisioning URI Format",
			mcp.WithResourceDescription("otpauth URI format accepted and produced by LightAuth."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readURIFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listAccounts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accs, err := s.svc.Accounts()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(lo.Map(accs, func(a models.Account, i int) accountEntry {
		return accountEntry{Index: i, Name: a.Name, Issuer: a.Issuer}
	}))
}

func (s *Server) getCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return mcp.NewToolResultError("index must be an integer"), nil
	}
	c, err := s.svc.CurrentCode(i, s.now())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

func (s *Server) parseURI(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := req.RequireString("uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, ok := otpuri.Parse(uri)
	if !ok {
		return mcp.NewToolResultError("not a usable otpauth uri"), nil
	}
	return jsonResult(key)
}

func (s *Server) generateSecret(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	secret, err := otp.GenerateSecret()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(secret), nil
}

func (s *Server) readURIFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "lauth://uri-format",
			MIMEType: "text/markdown",
			Text:     URIFormatContract,
		},
	}, nil
}
