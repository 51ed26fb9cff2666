// Package credentials loads and queries the relay's static credential
// file: the agent name/secret table and the set of valid access-client
// secrets.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
)

// fileFormat mirrors the JSON shape of the credentials file:
//
//	{
//	  "edge-agents": { "<name>": "<secret>", ... },
//	  "access-client-secrets": [ "<secret>", ... ]
//	}
type fileFormat struct {
	EdgeAgents          map[string]string `json:"edge-agents"`
	AccessClientSecrets []string          `json:"access-client-secrets"`
}

// Store is an immutable, in-memory view of the credentials file. It is
// safe for concurrent reads from any number of goroutines since it is
// never mutated after Load returns.
type Store struct {
	agentSecrets  map[string]string
	clientSecrets map[string]struct{}
}

// Load reads and parses the credentials file at path. A missing or
// malformed file is a fatal startup condition: hot reload is a
// non-goal, so the caller should treat a non-nil error as cause to
// exit non-zero.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file %q: %w", path, err)
	}

	var parsed fileFormat
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse credentials file %q: %w", path, err)
	}

	clientSecrets := make(map[string]struct{}, len(parsed.AccessClientSecrets))
	for _, secret := range parsed.AccessClientSecrets {
		clientSecrets[secret] = struct{}{}
	}

	return &Store{
		agentSecrets:  parsed.EdgeAgents,
		clientSecrets: clientSecrets,
	}, nil
}

// VerifyAgent reports whether name is a known agent and secret matches
// its configured secret.
func (s *Store) VerifyAgent(name, secret string) bool {
	want, ok := s.agentSecrets[name]
	return ok && want == secret
}

// VerifyClient reports whether secret is one of the configured
// access-client secrets.
func (s *Store) VerifyClient(secret string) bool {
	_, ok := s.clientSecrets[secret]
	return ok
}
