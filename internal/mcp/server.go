// Package mcp exposes the compatibility scorer and clinician match records as MCP tools
// over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/kidneymatch"
	"github.com/kidney-match-server/internal/metrics"
	"github.com/kidney-match-server/internal/service"
)

const (
	defaultServerName    = "kidney-match-mcp"
	defaultServerVersion = "1.0.0"
)

// Server represents the kidney match MCP server.
type Server struct {
	info      *mcp.Implementation
	mcpServer *mcp.Server
	scorer    domain.CompatibilityScorer
	matches   kidneymatch.Store
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// ServerOption is a functional option for Server.
type ServerOption func(*Server) error

// WithMatchStore enables the kidney match record tools.
func WithMatchStore(store kidneymatch.Store) ServerOption {
	return func(s *Server) error {
		s.matches = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithScorer replaces the standard compatibility scorer.
func WithScorer(scorer domain.CompatibilityScorer) ServerOption {
	return func(s *Server) error {
		s.scorer = scorer
		return nil
	}
}

// WithMetrics records evaluation outcomes.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) error {
		s.metrics = m
		return nil
	}
}

// NewServer creates a new MCP server instance
func NewServer(config domain.MCPConfig, opts ...ServerOption) (*Server, error) {
	name := config.ServerName
	if name == "" {
		name = defaultServerName
	}
	version := config.ServerVersion
	if version == "" {
		version = defaultServerVersion
	}

	server := &Server{
		info:   &mcp.Implementation{Name: name, Version: version},
		scorer: service.NewCompatibilityScorer(),
		logger: logrus.New(),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	server.mcpServer = mcp.NewServer(server.info, nil)

	if err := server.registerCapabilities(); err != nil {
		return nil, fmt.Errorf("failed to register capabilities: %w", err)
	}

	return server, nil
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"name":    s.info.Name,
		"version": s.info.Version,
		"records": s.matches != nil,
	}).Info("Starting kidney match MCP server")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close releases the match store.
func (s *Server) Close() error {
	if s.matches == nil {
		return nil
	}
	if err := s.matches.Close(); err != nil {
		return fmt.Errorf("failed to close match store: %w", err)
	}
	return nil
}

// ToolNames lists the registered tools in registration order.
func (s *Server) ToolNames() []string {
	names := []string{toolEvaluate, toolRiskTiers}
	if s.matches != nil {
		names = append(names, toolRecordMatch, toolListMatches)
	}
	return names
}

// registerCapabilities registers all MCP tools
func (s *Server) registerCapabilities() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: toolEvaluate,
		Description: "Score one kidney donor against one patient. Both profiles are loose objects " +
			"(blood_group, hla_typing, crossmatch_result, pra_score, gfr, creatinine_level, age, bmi, " +
			"diabetes, previous_transplant). Returns status, final score, risk level, action, reasons " +
			"and warnings. The result is advisory; a doctor must confirm every match.",
	}, s.handleEvaluate)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolRiskTiers,
		Description: "Return the risk classification table mapping final scores to risk levels and actions.",
	}, s.handleRiskTiers)

	if s.matches != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        toolRecordMatch,
			Description: "Record a clinician decision for a donor-patient pair (status PENDING, APPROVED, REJECTED or COMPLETED).",
		}, s.handleRecordMatch)

		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        toolListMatches,
			Description: "List recorded clinician decisions, optionally filtered by donor_id, patient_id or status.",
		}, s.handleListMatches)
	}

	s.logger.WithField("tool_count", len(s.ToolNames())).Info("Registered MCP tools")
	return nil
}
