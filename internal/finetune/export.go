// ABOUTME: Exports the full turn corpus as a JSON-lines fine-tuning artifact
// ABOUTME: One record per conversation, each prefixed with the synthesized system turn

package finetune

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/symphonylabs/symphony/internal/turn"
)

// record is one JSONL line: a complete conversation in chat-completion shape.
type record struct {
	Messages []turn.Message `json:"messages"`
}

// Export groups the corpus by conversation (grouped in order of each
// conversation's earliest turn), prefixes every group with the system
// message, and serializes each group as one JSON-lines record. The input must
// already be ordered by timestamp ascending, as the store returns it.
func Export(corpus []turn.Turn, system turn.Message) ([]byte, error) {
	groups := make(map[string][]turn.Message)
	var order []string

	for _, t := range corpus {
		key := t.ConversationID
		if _, seen := groups[key]; !seen {
			order = append(order, key)
			groups[key] = []turn.Message{system}
		}
		groups[key] = append(groups[key], t.Message)
	}

	var buf bytes.Buffer
	for _, key := range order {
		line, err := json.Marshal(record{Messages: groups[key]})
		if err != nil {
			return nil, fmt.Errorf("encoding conversation %s: %w", key, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// WriteArtifact writes the exported corpus to a durable file under dir and
// returns its path.
func WriteArtifact(dir string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}

	path := filepath.Join(dir, "training-data.jsonl")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	return path, nil
}
