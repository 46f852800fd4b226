package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestName is the discovery file a server writes into its root
// directory at startup. Clients read it to find the server address.
const ManifestName = "manifest.json"

// ManifestVersion is bumped when the manifest schema changes.
const ManifestVersion = 1

// Manifest describes the server currently holding a store root.
type Manifest struct {
	Version   int       `json:"version"`
	Addr      string    `json:"addr"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// WriteManifest atomically writes the manifest into root.
func WriteManifest(root string, m Manifest) error {
	if m.Addr == "" {
		return fmt.Errorf("gencache: manifest addr is required")
	}
	if m.Version == 0 {
		m.Version = ManifestVersion
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(root, ".manifest-*")
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(root, ManifestName))
}

// ReadManifest loads the manifest from root.
func ReadManifest(root string) (Manifest, error) {
	b, err := os.ReadFile(filepath.Join(root, ManifestName))
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("gencache: malformed manifest: %w", err)
	}
	if m.Addr == "" {
		return Manifest{}, fmt.Errorf("gencache: malformed manifest: addr missing")
	}
	return m, nil
}
