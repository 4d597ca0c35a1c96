package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Tije-csv/RAG-2.2/internal/pipeline"
	"github.com/Tije-csv/RAG-2.2/internal/store"
	"github.com/Tije-csv/RAG-2.2/pkg/version"
)

const serverName = "rag"

// Engine is the part of the pipeline the MCP tools drive.
type Engine interface {
	ProcessQuery(ctx context.Context, text string) (*pipeline.QueryResponse, error)
	AddDocuments(ctx context.Context, inputs []store.Input) (int, error)
	IngestPaths(ctx context.Context, files []string, dirs []string) (int, error)
	Stats(ctx context.Context) (pipeline.Stats, error)
}

// Server bridges MCP clients and the engine.
type Server struct {
	mcp    *mcp.Server
	engine Engine
	logger *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "query",
		Description: "Answer a question from the indexed documents. Factual questions are grounded on the best matching documents and cite them; creative requests go straight to the language model.",
	},
	{
		Name:        "add_documents",
		Description: "Index files, a directory or inline text so later queries can use them. Text, Markdown, PDF, DOCX and XLSX files are supported.",
	},
	{
		Name:        "stats",
		Description: "Report corpus size, dense index training state, cache usage and active providers.",
	},
}

// NewServer creates an MCP server over engine.
func NewServer(engine Engine, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: engine, logger: logger}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name and returns its markdown rendering.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "query":
		var in QueryInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		out, err := s.query(ctx, in)
		if err != nil {
			return "", err
		}
		return out.markdown, nil
	case "add_documents":
		var in AddDocumentsInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		out, err := s.addDocuments(ctx, in)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Added %d new document(s).", out.Added), nil
	case "stats":
		out, err := s.stats(ctx)
		if err != nil {
			return "", err
		}
		return FormatStats(out), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(err.Error())
	}
	return nil
}

type queryResult struct {
	output   QueryOutput
	markdown string
}

func (s *Server) query(ctx context.Context, in QueryInput) (*queryResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, NewInvalidParamsError("text parameter is required and must be a non-empty string")
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("query started",
		slog.String("request_id", requestID),
		slog.String("query", in.Text))

	resp, err := s.engine.ProcessQuery(ctx, in.Text)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("query failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("query completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.String("path", string(resp.Path)),
		slog.Int("result_count", len(resp.RetrievedDocs)))

	return &queryResult{
		output:   toQueryOutput(resp),
		markdown: FormatQueryResponse(in.Text, resp),
	}, nil
}

func (s *Server) addDocuments(ctx context.Context, in AddDocumentsInput) (AddDocumentsOutput, error) {
	if len(in.FilePaths) == 0 && in.DirectoryPath == "" && len(in.Documents) == 0 {
		return AddDocumentsOutput{}, NewInvalidParamsError("one of file_paths, directory_path or documents is required")
	}

	var out AddDocumentsOutput
	if len(in.FilePaths) > 0 || in.DirectoryPath != "" {
		var dirs []string
		if in.DirectoryPath != "" {
			dirs = []string{in.DirectoryPath}
		}
		n, err := s.engine.IngestPaths(ctx, in.FilePaths, dirs)
		if err != nil {
			return AddDocumentsOutput{}, MapError(err)
		}
		out.Added += n
	}
	if len(in.Documents) > 0 {
		n, err := s.engine.AddDocuments(ctx, in.Documents)
		if err != nil {
			return AddDocumentsOutput{}, MapError(err)
		}
		out.Added += n
	}
	s.logger.Info("documents added", slog.Int("added", out.Added))
	return out, nil
}

func (s *Server) stats(ctx context.Context) (StatsOutput, error) {
	st, err := s.engine.Stats(ctx)
	if err != nil {
		return StatsOutput{}, MapError(err)
	}
	return toStatsOutput(st), nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpQueryHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpAddDocumentsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpStatsHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpQueryHandler(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (
	*mcp.CallToolResult,
	QueryOutput,
	error,
) {
	res, err := s.query(ctx, input)
	if err != nil {
		return nil, QueryOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.markdown}},
	}, res.output, nil
}

func (s *Server) mcpAddDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, input AddDocumentsInput) (
	*mcp.CallToolResult,
	AddDocumentsOutput,
	error,
) {
	out, err := s.addDocuments(ctx, input)
	if err != nil {
		return nil, AddDocumentsOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	StatsOutput,
	error,
) {
	out, err := s.stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return nil, out, nil
}

// Serve runs the server on the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
