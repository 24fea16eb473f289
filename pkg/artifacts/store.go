// Package artifacts persists pipeline phase outputs as per-client JSON
// files. Writes are atomic so a crashed run never leaves a torn file
// for the next phase to read.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Well-known artifact file names, in pipeline order.
const (
	FileRawSchema      = "01_schema_graph.json"
	FileDataProfile    = "02_data_profile.json"
	FileRelationships  = "03_relationships_complete.json"
	FileFingerprints   = "04_fingerprints.json"
	FileSemanticLayer  = "semantic_layer_complete.json"
	FileKnowledgeGraph = "knowledge_graph_enhanced.json"
	FileGraphSummary   = "knowledge_graph_summary.json"
)

// Store reads and writes artifacts under <root>/<client_id>/.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{root: dir, logger: logger.Named("artifacts")}
}

// Path returns the absolute location of a client artifact.
func (s *Store) Path(clientID, name string) string {
	return filepath.Join(s.root, clientID, name)
}

// Exists reports whether a client artifact is present on disk.
func (s *Store) Exists(clientID, name string) bool {
	_, err := os.Stat(s.Path(clientID, name))
	return err == nil
}

// Write marshals v to indented JSON and installs it atomically:
// write to a temp file in the same directory, then rename.
func (s *Store) Write(clientID, name string, v any) error {
	dir := filepath.Join(s.root, clientID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}

	final := filepath.Join(dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("install %s: %w", name, err)
	}

	s.logger.Debug("artifact written",
		zap.String("client_id", clientID),
		zap.String("artifact", name),
		zap.Int("bytes", len(data)))

	return nil
}

// Read unmarshals a client artifact into v.
func (s *Store) Read(clientID, name string, v any) error {
	data, err := os.ReadFile(s.Path(clientID, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("artifact %s for client %s not found: %w", name, clientID, err)
		}
		return fmt.Errorf("read artifact %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal artifact %s: %w", name, err)
	}
	return nil
}
