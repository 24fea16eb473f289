// Package graphstore persists the semantic layer into Neo4j and serves
// the graph reads behind the schema context builder. Table and column
// nodes are keyed per client so multiple databases share one instance.
package graphstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/config"
	"github.com/luminadata/schemagraph/pkg/graph"
	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/schemactx"
)

// Store wraps a Neo4j driver with the load and read operations the
// pipeline and the conversational engine need.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

var _ schemactx.GraphReader = (*Store)(nil)

// New connects to Neo4j and verifies connectivity before returning.
func New(ctx context.Context, cfg config.GraphConfig, logger *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGraphStoreDown, "create neo4j driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.Wrap(apperrors.KindGraphStoreDown, fmt.Sprintf("connect to neo4j at %s", cfg.URI), err)
	}
	return &Store{
		driver:   driver,
		database: cfg.Database,
		logger:   logger.Named("graphstore"),
	}, nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// InitSchema creates the uniqueness constraints and lookup indexes. All
// statements are idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT table_client_name IF NOT EXISTS
		 FOR (t:Table) REQUIRE (t.client_id, t.name) IS UNIQUE`,
		`CREATE CONSTRAINT column_client_table_name IF NOT EXISTS
		 FOR (c:Column) REQUIRE (c.client_id, c.table, c.name) IS UNIQUE`,
		`CREATE INDEX table_role IF NOT EXISTS FOR (t:Table) ON (t.role)`,
		`CREATE INDEX column_data_type IF NOT EXISTS FOR (c:Column) ON (c.data_type)`,
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return apperrors.Wrap(apperrors.KindGraphStoreDown, "init graph schema", err)
		}
	}
	s.logger.Info("graph schema initialized")
	return nil
}

// LoadSemanticLayer upserts the layer's tables, columns and foreign keys.
// Nodes are merged on their client-scoped keys so re-loading an updated
// layer refreshes properties without duplicating the graph.
func (s *Store) LoadSemanticLayer(ctx context.Context, layer *models.SemanticLayer) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	names := make([]string, 0, len(layer.Tables))
	for name := range layer.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, name := range names {
			table := layer.Tables[name]
			if err := s.upsertTable(ctx, tx, layer.ClientID, table); err != nil {
				return nil, fmt.Errorf("table %s: %w", name, err)
			}
		}
		// Foreign keys run after all tables exist so both endpoints match.
		for _, name := range names {
			for _, rel := range layer.Tables[name].Relationships {
				if err := s.upsertForeignKey(ctx, tx, layer, rel); err != nil {
					return nil, fmt.Errorf("foreign key %s: %w", rel.Key(), err)
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindGraphStoreDown, fmt.Sprintf("load semantic layer for %s", layer.ClientID), err)
	}

	s.logger.Info("semantic layer loaded",
		zap.String("client_id", layer.ClientID),
		zap.Int("tables", len(layer.Tables)))
	return nil
}

func (s *Store) upsertTable(ctx context.Context, tx neo4j.ManagedTransaction, clientID string, table *models.SemanticTable) error {
	_, err := tx.Run(ctx, `
		MERGE (t:Table {client_id: $client_id, name: $name})
		ON CREATE SET t.created_at = timestamp()
		SET t.role = $role,
		    t.domain = $domain,
		    t.row_count = $row_count,
		    t.column_count = $column_count,
		    t.description = $description,
		    t.data_quality_score = $data_quality_score,
		    t.has_temporal = $has_temporal,
		    t.has_geospatial = $has_geospatial,
		    t.risk_profile = $risk_profile,
		    t.cluster_id = $cluster_id,
		    t.updated_at = timestamp()`,
		map[string]any{
			"client_id":          clientID,
			"name":               table.Name,
			"role":               string(table.Role),
			"domain":             graph.DomainFor(table.Name),
			"row_count":          table.RowCount,
			"column_count":       table.ColumnCount,
			"description":        table.Description,
			"data_quality_score": graph.DataQualityScore(table),
			"has_temporal":       table.HasTemporal,
			"has_geospatial":     table.HasGeospatial,
			"risk_profile":       string(table.RiskProfile),
			"cluster_id":         table.ClusterID,
		})
	if err != nil {
		return err
	}

	for _, col := range table.Columns {
		_, err := tx.Run(ctx, `
			MERGE (c:Column {client_id: $client_id, table: $table, name: $name})
			SET c.data_type = $data_type,
			    c.nullable = $nullable,
			    c.column_role = $column_role,
			    c.null_pct = $null_pct,
			    c.distinct_pct = $distinct_pct
			WITH c
			MATCH (t:Table {client_id: $client_id, name: $table})
			MERGE (c)-[:COLUMN_OF]->(t)`,
			map[string]any{
				"client_id":    clientID,
				"table":        table.Name,
				"name":         col.Name,
				"data_type":    col.DataType,
				"nullable":     col.Nullable,
				"column_role":  string(graph.ClassifyColumn(col)),
				"null_pct":     floatOrZero(col.NullPct),
				"distinct_pct": floatOrZero(col.DistinctPct),
			})
		if err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
	}
	return nil
}

// upsertForeignKey merges on the column pair so parallel foreign keys
// between the same two tables stay distinct edges.
func (s *Store) upsertForeignKey(ctx context.Context, tx neo4j.ManagedTransaction, layer *models.SemanticLayer, rel models.Relationship) error {
	_, err := tx.Run(ctx, `
		MATCH (s:Table {client_id: $client_id, name: $source})
		MATCH (t:Table {client_id: $client_id, name: $target})
		MERGE (s)-[r:FOREIGN_KEY {from_column: $from_column, to_column: $to_column}]->(t)
		SET r.cardinality = $cardinality,
		    r.semantic_role = $semantic_role,
		    r.type = $type,
		    r.confidence = $confidence,
		    r.evidence = $evidence`,
		map[string]any{
			"client_id":     layer.ClientID,
			"source":        rel.SourceTable,
			"target":        rel.TargetTable,
			"from_column":   rel.SourceColumn,
			"to_column":     rel.TargetColumn,
			"cardinality":   string(graph.EdgeCardinality(layer, rel)),
			"semantic_role": string(graph.SemanticRole(layer, rel)),
			"type":          string(rel.Type),
			"confidence":    rel.Confidence,
			"evidence":      rel.Evidence,
		})
	return err
}

// PurgeClient removes every node and edge belonging to one client.
func (s *Store) PurgeClient(ctx context.Context, clientID string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (n) WHERE n.client_id = $client_id
			DETACH DELETE n`,
			map[string]any{"client_id": clientID})
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindGraphStoreDown, fmt.Sprintf("purge client %s", clientID), err)
	}
	s.logger.Info("client purged from graph", zap.String("client_id", clientID))
	return nil
}

// StoreStats counts one client's footprint in the graph.
type StoreStats struct {
	Tables      int64 `json:"tables"`
	Columns     int64 `json:"columns"`
	ForeignKeys int64 `json:"foreign_keys"`
}

// Stats returns node and relationship counts for one client.
func (s *Store) Stats(ctx context.Context, clientID string) (*StoreStats, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (t:Table {client_id: $client_id})
			OPTIONAL MATCH (c:Column {client_id: $client_id})
			OPTIONAL MATCH (:Table {client_id: $client_id})-[r:FOREIGN_KEY]->(:Table)
			RETURN count(DISTINCT t) AS tables, count(DISTINCT c) AS columns, count(DISTINCT r) AS foreign_keys`,
			map[string]any{"client_id": clientID})
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		stats := &StoreStats{}
		if v, ok := record.Get("tables"); ok {
			stats.Tables, _ = v.(int64)
		}
		if v, ok := record.Get("columns"); ok {
			stats.Columns, _ = v.(int64)
		}
		if v, ok := record.Get("foreign_keys"); ok {
			stats.ForeignKeys, _ = v.(int64)
		}
		return stats, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGraphStoreDown, "read graph stats", err)
	}
	return out.(*StoreStats), nil
}

// Tables lists one client's table names in deterministic order.
func (s *Store) Tables(ctx context.Context, clientID string) ([]string, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (t:Table {client_id: $client_id})
			RETURN t.name AS name ORDER BY name`,
			map[string]any{"client_id": clientID})
		if err != nil {
			return nil, err
		}
		var names []string
		for result.Next(ctx) {
			if v, ok := result.Record().Get("name"); ok {
				if name, ok := v.(string); ok {
					names = append(names, name)
				}
			}
		}
		return names, result.Err()
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGraphStoreDown, "list tables", err)
	}
	return out.([]string), nil
}

// Columns lists one table's columns with their declared types.
func (s *Store) Columns(ctx context.Context, clientID, table string) ([]schemactx.ColumnInfo, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (c:Column {client_id: $client_id, table: $table})
			RETURN c.name AS name, c.data_type AS data_type ORDER BY name`,
			map[string]any{"client_id": clientID, "table": table})
		if err != nil {
			return nil, err
		}
		var cols []schemactx.ColumnInfo
		for result.Next(ctx) {
			record := result.Record()
			col := schemactx.ColumnInfo{}
			if v, ok := record.Get("name"); ok {
				col.Name, _ = v.(string)
			}
			if v, ok := record.Get("data_type"); ok {
				col.DataType, _ = v.(string)
			}
			cols = append(cols, col)
		}
		return cols, result.Err()
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGraphStoreDown, fmt.Sprintf("list columns of %s", table), err)
	}
	return out.([]schemactx.ColumnInfo), nil
}

// Joins lists one table's outgoing foreign keys.
func (s *Store) Joins(ctx context.Context, clientID, table string) ([]schemactx.Join, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (s:Table {client_id: $client_id, name: $table})-[r:FOREIGN_KEY]->(t:Table)
			RETURN t.name AS target, r.to_column AS column ORDER BY target, column`,
			map[string]any{"client_id": clientID, "table": table})
		if err != nil {
			return nil, err
		}
		var joins []schemactx.Join
		for result.Next(ctx) {
			record := result.Record()
			join := schemactx.Join{}
			if v, ok := record.Get("target"); ok {
				join.TargetTable, _ = v.(string)
			}
			if v, ok := record.Get("column"); ok {
				join.TargetColumn, _ = v.(string)
			}
			joins = append(joins, join)
		}
		return joins, result.Err()
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGraphStoreDown, fmt.Sprintf("list joins of %s", table), err)
	}
	return out.([]schemactx.Join), nil
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   mode,
	})
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
