package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// FileSymbolStore keeps per-symbol trading configs in a single JSON or YAML
// file keyed by code. YAML is used when the file extension is .yaml or .yml.
type FileSymbolStore struct {
	path string

	mu      sync.Mutex
	configs map[string]domain.SymbolConfig
}

var _ domain.SymbolConfigStore = (*FileSymbolStore)(nil)

// OpenSymbolFile loads path. A missing file yields an empty store that is
// created on the first write.
func OpenSymbolFile(path string) (*FileSymbolStore, error) {
	s := &FileSymbolStore{path: path, configs: map[string]domain.SymbolConfig{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read symbols %s: %w", path, err)
	}
	configs, err := DecodeSymbols(data, IsYAMLPath(path))
	if err != nil {
		return nil, fmt.Errorf("config: symbols %s: %w", path, err)
	}
	s.configs = configs
	return s, nil
}

// DecodeSymbols parses a code-keyed symbol config document.
func DecodeSymbols(data []byte, asYAML bool) (map[string]domain.SymbolConfig, error) {
	recs := map[string]domain.SymbolRecord{}
	var err error
	if asYAML {
		err = yaml.Unmarshal(data, &recs)
	} else if len(bytes.TrimSpace(data)) > 0 {
		err = json.Unmarshal(data, &recs)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return domain.DecodeSymbolMap(recs)
}

// EncodeSymbols renders configs in the file layout. JSON is indented by four
// spaces and keeps non-ASCII text unescaped.
func EncodeSymbols(configs map[string]domain.SymbolConfig, asYAML bool) ([]byte, error) {
	recs := make(map[string]domain.SymbolRecord, len(configs))
	for code, c := range configs {
		recs[code] = c.Record()
	}
	if asYAML {
		return yaml.Marshal(recs)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(recs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsYAMLPath reports whether path names a YAML symbol file.
func IsYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Path returns the backing file.
func (s *FileSymbolStore) Path() string { return s.path }

func (s *FileSymbolStore) Get(_ context.Context, code string) (domain.SymbolConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[code]
	if !ok {
		return domain.SymbolConfig{}, fmt.Errorf("config: symbol %s: %w", code, domain.ErrNotFound)
	}
	return c, nil
}

func (s *FileSymbolStore) List(context.Context) ([]domain.SymbolConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SymbolConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.SymbolConfig) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

// Upsert stores cfg and rewrites the file.
func (s *FileSymbolStore) Upsert(_ context.Context, cfg domain.SymbolConfig) error {
	if cfg.Code == "" {
		return fmt.Errorf("config: upsert symbol: %w: empty code", domain.ErrConfigInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.UpdatedAt = time.Now().UTC()
	prev, had := s.configs[cfg.Code]
	s.configs[cfg.Code] = cfg
	if err := s.flushLocked(); err != nil {
		if had {
			s.configs[cfg.Code] = prev
		} else {
			delete(s.configs, cfg.Code)
		}
		return err
	}
	return nil
}

// Delete removes code and rewrites the file.
func (s *FileSymbolStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.configs[code]
	if !ok {
		return fmt.Errorf("config: delete symbol %s: %w", code, domain.ErrNotFound)
	}
	delete(s.configs, code)
	if err := s.flushLocked(); err != nil {
		s.configs[code] = prev
		return err
	}
	return nil
}

// flushLocked writes the whole map through a temp file and rename.
func (s *FileSymbolStore) flushLocked() error {
	data, err := EncodeSymbols(s.configs, IsYAMLPath(s.path))
	if err != nil {
		return fmt.Errorf("config: encode symbols: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".symbols-*")
	if err != nil {
		return fmt.Errorf("config: write symbols: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write symbols: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: write symbols: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("config: write symbols: %w", err)
	}
	return nil
}
