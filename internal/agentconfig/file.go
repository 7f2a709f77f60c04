package agentconfig

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// agentsFile is the YAML layout read by FileStore.
//
//	agents:
//	  - organization_id: org_1
//	    agent_id: agent_1
//	    greeting: "Thanks for calling Acme."
type agentsFile struct {
	Agents []agentEntry `yaml:"agents"`
}

type agentEntry struct {
	OrganizationID string `yaml:"organization_id"`
	AgentID        string `yaml:"agent_id"`
	Greeting       string `yaml:"greeting"`
}

type agentKey struct {
	organizationID string
	agentID        string
}

// FileStore is a read-only Lookup loaded from a YAML file at startup
type FileStore struct {
	agents map[agentKey]AgentConfig
}

var _ Lookup = (*FileStore)(nil)

// LoadFile reads an agents YAML file from disk
func LoadFile(path string) (*FileStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: open %q: %w", path, err)
	}
	defer f.Close()

	store, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: parse %q: %w", path, err)
	}
	return store, nil
}

// LoadFromReader parses agents YAML. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*FileStore, error) {
	var file agentsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("agentconfig: decode yaml: %w", err)
	}

	store := &FileStore{agents: make(map[agentKey]AgentConfig, len(file.Agents))}
	for i, entry := range file.Agents {
		if entry.OrganizationID == "" || entry.AgentID == "" {
			return nil, fmt.Errorf("agentconfig: entry %d: organization_id and agent_id are required", i)
		}
		key := agentKey{entry.OrganizationID, entry.AgentID}
		if _, dup := store.agents[key]; dup {
			return nil, fmt.Errorf("agentconfig: duplicate agent %s/%s", entry.OrganizationID, entry.AgentID)
		}
		store.agents[key] = AgentConfig{Greeting: entry.Greeting}
	}
	return store, nil
}

// GetAgentConfig implements Lookup
func (s *FileStore) GetAgentConfig(_ context.Context, organizationID, agentID string) (*AgentConfig, error) {
	cfg, ok := s.agents[agentKey{organizationID, agentID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

// Len returns the number of agents loaded
func (s *FileStore) Len() int {
	return len(s.agents)
}
