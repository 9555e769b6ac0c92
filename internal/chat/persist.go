package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/roboplan/roboplan/pkg/models"
)

// Save writes the conversation snapshot as JSON to path. The write goes
// through a temp file in the same directory followed by a rename, so a
// crash mid-write never leaves a truncated snapshot behind.
func (c *Chat) Save(path string) error {
	snap := c.mem.Snapshot()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".conversation-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("turns", len(snap.Turns)).Msg("conversation saved")
	return nil
}

// Load replaces the conversation from a snapshot file. The file is fully
// parsed before any state changes: a malformed snapshot leaves the current
// conversation intact.
func (c *Chat) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", path, err)
	}

	var snap models.ConversationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", path, err)
	}

	c.mem.Restore(&snap)
	log.Info().Str("path", path).Int("turns", len(snap.Turns)).Msg("conversation loaded")
	return nil
}
