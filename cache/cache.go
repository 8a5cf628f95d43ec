// Package cache persists per-hub state across process runs: the hash of
// the last program uploaded and the last configuration applied, so the
// orchestrator can skip redundant uploads and STORE writes on
// reconnect. Backed by gopkg.in/yaml.v2.
package cache

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// Entry is one hub's persisted state.
type Entry struct {
	ProgramHash   string            `yaml:"program_hash"`
	Configuration map[string]uint32 `yaml:"configuration"`
}

// fileFormat is the on-disk shape: a map keyed by hub address.
type fileFormat struct {
	Hubs map[string]Entry `yaml:"hubs"`
}

// Store is a mutex-guarded, file-backed cache of per-hub Entry values.
// A missing or malformed file is treated as an empty store rather than
// an error: the cache is an optimization, never a hard dependency.
type Store struct {
	mu   sync.Mutex
	path string
	data fileFormat
}

// Open reads path if it exists and is well-formed YAML, or starts from
// an empty store otherwise.
func Open(path string) *Store {
	s := &Store{path: path, data: fileFormat{Hubs: map[string]Entry{}}}
	raw, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var parsed fileFormat
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return s
	}
	if parsed.Hubs == nil {
		parsed.Hubs = map[string]Entry{}
	}
	s.data = parsed
	return s
}

// ProgramHash returns the last recorded program hash for address, and
// whether an entry exists at all.
func (s *Store) ProgramHash(address string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data.Hubs[address]
	return e.ProgramHash, ok
}

// SetProgramHash records hash as the last uploaded program for address.
func (s *Store) SetProgramHash(address, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.data.Hubs[address]
	e.ProgramHash = hash
	s.data.Hubs[address] = e
}

// Configuration returns the last recorded STORE configuration for
// address.
func (s *Store) Configuration(address string) map[string]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.data.Hubs[address].Configuration
	out := make(map[string]uint32, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}

// SetConfiguration replaces the recorded configuration for address.
func (s *Store) SetConfiguration(address string, cfg map[string]uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.data.Hubs[address]
	e.Configuration = cfg
	s.data.Hubs[address] = e
}

// Save writes the current state back to path as YAML.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := yaml.Marshal(s.data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}
