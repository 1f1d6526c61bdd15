// Package ports writes the runtime ports file the core backend reads at boot
// to discover its assigned ports without argument passing.
package ports

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Version identifies the file format. The file's location is a deployment
// contract: <home>/config/ports.json, always.
const Version = 1

// Runtime is the on-disk document. Nil port fields serialize as null.
type Runtime struct {
	Version   int  `json:"version"`
	Core      *int `json:"core"`
	SeaweedS3 *int `json:"seaweed_s3"`
}

// Path returns the canonical ports file location under home.
func Path(home string) string {
	return filepath.Join(home, "config", "ports.json")
}

// Write persists the ports file, creating the config directory as needed.
// It is called before every core spawn so the child never reads stale ports.
func Write(home string, corePort, seaweedS3Port *int) error {
	dir := filepath.Join(home, "config")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	doc := Runtime{Version: Version, Core: corePort, SeaweedS3: seaweedS3Port}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(Path(home), b, 0o640); err != nil {
		return fmt.Errorf("write ports file: %w", err)
	}
	return nil
}

// Read loads the ports file. Used by status tooling and tests; the core
// backend has its own reader in its own codebase.
func Read(home string) (Runtime, error) {
	var doc Runtime
	b, err := os.ReadFile(Path(home))
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("parse ports file: %w", err)
	}
	return doc, nil
}
