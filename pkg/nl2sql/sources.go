package nl2sql

import (
	"context"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/config"
	"github.com/luminadata/schemagraph/pkg/database"
	"github.com/luminadata/schemagraph/pkg/datasource"
	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/schemactx"
)

// AgentContexts routes schema context builds to the right graph
// backend: the queryable store for the Conversational and Neo4jEngine
// agents, the portable on-disk graph for NetworkXEngine.
type AgentContexts struct {
	// Store reads the queryable graph. Nil when no graph store is
	// configured.
	Store schemactx.GraphReader

	// OpenPortable loads a client's on-disk knowledge graph.
	OpenPortable func(clientID string) (schemactx.GraphReader, error)

	Logger *zap.Logger
}

var _ ContextSource = (*AgentContexts)(nil)

// SchemaContext implements ContextSource.
func (a *AgentContexts) SchemaContext(ctx context.Context, clientID string, agent models.AgentKind) (string, error) {
	var reader schemactx.GraphReader
	switch agent {
	case models.AgentNetworkEngine:
		if a.OpenPortable == nil {
			return "", apperrors.New(apperrors.KindConfigMissing, "portable graph backend is not configured")
		}
		portable, err := a.OpenPortable(clientID)
		if err != nil {
			return "", err
		}
		reader = portable
	default:
		if a.Store == nil {
			return "", apperrors.New(apperrors.KindConfigMissing, "graph store is not configured")
		}
		reader = a.Store
	}
	return schemactx.NewBuilder(reader, a.Logger).Build(ctx, clientID)
}

// ClientReaders opens per-client PostgreSQL readers from the client
// config directory. Each Open returns a fresh connection pool the
// caller must Close.
type ClientReaders struct {
	Dir    string
	Logger *zap.Logger
}

var _ ReaderSource = (*ClientReaders)(nil)

// Open implements ReaderSource.
func (c *ClientReaders) Open(ctx context.Context, clientID string) (datasource.Reader, error) {
	cc, err := config.LoadClient(c.Dir, clientID)
	if err != nil {
		return nil, err
	}
	db, err := database.Connect(ctx, cc, nil)
	if err != nil {
		return nil, err
	}
	return datasource.NewPostgresReader(db, "", c.Logger), nil
}
