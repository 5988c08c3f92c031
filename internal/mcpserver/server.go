// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only zensync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/zensync/internal/ledger"
	"github.com/starford/zensync/internal/models"
)

const workspaceFormatURI = "zensync://workspace-format"

// Workspace is the read side of the sync service.
type Workspace interface {
	State() models.PublicationState
	Candidates() ([]models.Candidate, error)
	Preview(path string) models.Metadata
}

// Server wraps the MCP server with zensync tools.
type Server struct {
	mcp     *server.MCPServer
	ws      Workspace
	history ledger.Reader
}

// New creates a new MCP server with all tools registered. history may be nil
// when the ledger is disabled.
func New(ws Workspace, history ledger.Reader, version string) *Server {
	s := &Server{ws: ws, history: history}

	s.mcp = server.NewMCPServer(
		"zensync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_candidates",
		mcp.WithDescription("List the local PDFs the next sync would publish, with checksum and recorded concept DOI."),
	), s.listCandidates)

	s.mcp.AddTool(mcp.NewTool("get_publication_state",
		mcp.WithDescription("Return the publication state: the concept DOI recorded for each file."),
	), s.getPublicationState)

	s.mcp.AddTool(mcp.NewTool("get_publication_history",
		mcp.WithDescription("List published versions from the history ledger, newest first."),
		mcp.WithString("path", mcp.Description("Optional file path filter (e.g. out/report.pdf)")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 50)")),
	), s.getPublicationHistory)

	s.mcp.AddTool(mcp.NewTool("list_published_files",
		mcp.WithDescription("List every file path with at least one version in the history ledger."),
	), s.listPublishedFiles)

	s.mcp.AddTool(mcp.NewTool("preview_metadata",
		mcp.WithDescription("Show the deposition metadata a sync would send for a file today. "+
			"Read the workspace format first via get_workspace_format or the "+workspaceFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path relative to the workspace (e.g. out/report.pdf)")),
	), s.previewMetadata)

	s.mcp.AddTool(mcp.NewTool("get_workspace_format",
		mcp.WithDescription("Returns the layout of zenodo.json, zenodo.files.json and .zenodo_state.json."),
	), s.getWorkspaceFormat)

	s.mcp.AddResource(
		mcp.NewResource(workspaceFormatURI, "Workspace Format",
			mcp.WithResourceDescription("JSON documents that drive metadata and publication state."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readWorkspaceFormatResource,
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

type candidateItem struct {
	models.Candidate
	ConceptDOI string `json:"concept_doi,omitempty"`
}

func (s *Server) listCandidates(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cands, err := s.ws.Candidates()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state := s.ws.State()
	items := make([]candidateItem, 0, len(cands))
	for _, c := range cands {
		items = append(items, candidateItem{Candidate: c, ConceptDOI: state[c.Path].ConceptDOI})
	}
	return jsonResult(items)
}

func (s *Server) getPublicationState(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := s.ws.State()
	if len(state) == 0 {
		return mcp.NewToolResultText("no files published yet"), nil
	}
	return jsonResult(state)
}

func (s *Server) getPublicationHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("history ledger is disabled"), nil
	}
	path := req.GetString("path", "")
	if path != "" {
		path = filepath.Clean(path)
	}
	rows, err := s.history.History(path, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no publications recorded"), nil
	}
	return jsonResult(rows)
}

func (s *Server) listPublishedFiles(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("history ledger is disabled"), nil
	}
	paths, err := s.history.Paths()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no publications recorded"), nil
	}
	return jsonResult(paths)
}

func (s *Server) previewMetadata(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.ws.Preview(path))
}

func (s *Server) getWorkspaceFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(WorkspaceFormat), nil
}

func (s *Server) readWorkspaceFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      workspaceFormatURI,
			MIMEType: "text/markdown",
			Text:     WorkspaceFormat,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
