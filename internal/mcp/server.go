// Package mcp exposes the question generation flows as tools on a Model
// Context Protocol server, so LLM clients can drive sequential questioning
// over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bitgeese/sequential-questioning/internal/log"
	"github.com/bitgeese/sequential-questioning/internal/question"
	"github.com/bitgeese/sequential-questioning/internal/retry"
)

// Server wraps the MCP SDK server and the question generator.
type Server struct {
	mcpServer *mcp.Server
	generator question.Generator
	logger    *slog.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name      string
	Version   string
	Generator question.Generator
	Logger    *slog.Logger
}

// NewServer creates a new MCP server with the questioning tools registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		generator: cfg.Generator,
		logger:    cfg.Logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Run starts the MCP server on the given transport.
// This is a blocking call that handles all MCP protocol communication.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// registerTools registers the three questioning tools.
func (s *Server) registerTools() error {
	if err := s.registerQuestion(); err != nil {
		return fmt.Errorf("failed to register sequential_questioning: %w", err)
	}
	if err := s.registerFollowUp(); err != nil {
		return fmt.Errorf("failed to register sequential_questioning_follow_up: %w", err)
	}
	if err := s.registerAutomatic(); err != nil {
		return fmt.Errorf("failed to register sequential_questioning_automatic: %w", err)
	}
	return nil
}

// registerQuestion registers the sequential_questioning tool.
func (s *Server) registerQuestion() error {
	inputSchema, err := jsonschema.For[question.Request](nil)
	if err != nil {
		return fmt.Errorf("failed to create input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "sequential_questioning",
		Description: "Generate a batch of contextual, sequential questions based on conversation history and context, presented in a numbered list format.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in question.Request) (*mcp.CallToolResult, any, error) {
		var resp *question.Response
		err := retry.Do(ctx, s.logger, "sequential_questioning", func() error {
			var genErr error
			resp, genErr = s.generator.Generate(ctx, &in)
			return genErr
		})
		if err != nil {
			return toolError(fmt.Sprintf("Failed to generate question after %d attempts: %v", retry.MaxAttempts, err)), nil, nil
		}

		resp.CurrentQuestion = question.RenderNumbered(resp.Questions)
		return toolResult(resp)
	})

	return nil
}

// registerFollowUp registers the sequential_questioning_follow_up tool.
func (s *Server) registerFollowUp() error {
	inputSchema, err := jsonschema.For[question.Request](nil)
	if err != nil {
		return fmt.Errorf("failed to create input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "sequential_questioning_follow_up",
		Description: "Generate follow-up questions based on the user's answers to previous questions, maintaining the conversation context.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in question.Request) (*mcp.CallToolResult, any, error) {
		// validation failure, not worth a retry
		if len(in.PreviousMessages) == 0 {
			return toolError(question.ErrPreviousMessagesRequired.Error()), nil, nil
		}

		var resp *question.Response
		err := retry.Do(ctx, s.logger, "sequential_questioning_follow_up", func() error {
			var genErr error
			resp, genErr = question.GenerateFollowUp(ctx, s.generator, &in)
			return genErr
		})
		if err != nil {
			return toolError(fmt.Sprintf("Failed to generate follow-up questions after %d attempts: %v", retry.MaxAttempts, err)), nil, nil
		}

		return toolResult(resp)
	})

	return nil
}

// registerAutomatic registers the sequential_questioning_automatic tool.
func (s *Server) registerAutomatic() error {
	inputSchema, err := jsonschema.For[question.AutomaticRequest](nil)
	if err != nil {
		return fmt.Errorf("failed to create input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "sequential_questioning_automatic",
		Description: "Run a complete question flow in one call: initial questions plus automatic follow-up rounds based on user responses.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in question.AutomaticRequest) (*mcp.CallToolResult, any, error) {
		var resp *question.AutomaticResponse
		err := retry.Do(ctx, s.logger, "sequential_questioning_automatic", func() error {
			var genErr error
			resp, genErr = question.GenerateAutomatic(ctx, s.generator, &in)
			return genErr
		})
		if err != nil {
			return toolError(fmt.Sprintf("Failed to generate automatic question flow after %d attempts: %v", retry.MaxAttempts, err)), nil, nil
		}

		return toolResult(resp)
	})

	return nil
}

// toolResult builds a success result carrying v both as JSON text and as
// structured content.
func toolResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, v, nil
}

// toolError builds an error result visible to the calling model.
func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
