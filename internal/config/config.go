// Package config parses the YAML configuration schema described in
// spec.md §6 and resolves the FDB_* environment variables that can
// override or supply parts of it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FDBType selects the dispatch front-end a Config builds.
type FDBType string

const (
	TypeLocal  FDBType = "local"
	TypeSelect FDBType = "select"
	TypeDist   FDBType = "dist"
	TypeRemote FDBType = "remote"
)

// StoreKind selects the payload backend.
type StoreKind string

const (
	StoreFile  StoreKind = "file"
	StoreFAM   StoreKind = "fam"
	StoreRADOS StoreKind = "rados"
	StoreS3    StoreKind = "s3"
)

// RootConfig is one root within a Space.
type RootConfig struct {
	Path     string `yaml:"path"`
	Writable bool   `yaml:"writable"`
	Visit    bool   `yaml:"visit"`
}

// SpaceConfig groups roots under a handler policy.
type SpaceConfig struct {
	Handler string       `yaml:"handler"`
	Roots   []RootConfig `yaml:"roots"`
}

// SelectLaneConfig is one entry of a `select` FDB's `fdbs` list.
type SelectLaneConfig struct {
	Select   map[string]string `yaml:"select"`
	Excludes []map[string]string `yaml:"excludes,omitempty"`
	FDB      Config            `yaml:"fdb"`
}

// DistLaneConfig is one entry of a `dist` FDB's `lanes` list.
type DistLaneConfig struct {
	ID  string `yaml:"id"`
	FDB Config `yaml:"fdb"`
}

// Config is the root configuration document. `lanes` and `fdbs` are
// recursively typed (each nested Config may itself be any type), per
// spec §6: "lanes (dist) and fdbs (select) recursively typed the same
// way."
type Config struct {
	Type   FDBType   `yaml:"type"`
	Schema string    `yaml:"schema"`
	Engine string    `yaml:"engine"`
	Store  StoreKind `yaml:"store"`

	Spaces map[string]SpaceConfig `yaml:"spaces,omitempty"`

	Lanes []DistLaneConfig   `yaml:"lanes,omitempty"`
	FDBs  []SelectLaneConfig `yaml:"fdbs,omitempty"`

	// Remote-only.
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// Object-store-only.
	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`

	Deduplicate    bool     `yaml:"-"`
	SeekableHandle bool     `yaml:"-"`
	AuxExtensions  []string `yaml:"-"`
	RootsFile      string   `yaml:"-"`
	SpacesFile     string   `yaml:"-"`
}

// Load parses a YAML configuration document, then applies environment
// variable overrides (spec §6's environment variable list).
func Load(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.applyEnv()
	if cfg.Engine == "" {
		cfg.Engine = "toc"
	}
	return &cfg, nil
}

// LoadFile reads and parses the configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Load(data)
}

// Resolve locates the configuration to load, in priority order:
// FDB5_CONFIG (inline YAML text), then FDB5_CONFIG_FILE, then the
// conventional "<FDB_HOME>/etc/fdb/config.yaml" path, per spec §6.
func Resolve() (*Config, error) {
	if inline := os.Getenv("FDB5_CONFIG"); inline != "" {
		return Load([]byte(inline))
	}
	if path := os.Getenv("FDB5_CONFIG_FILE"); path != "" {
		return LoadFile(path)
	}
	home := os.Getenv("FDB_HOME")
	if home == "" {
		home = "/usr/local"
	}
	return LoadFile(home + "/etc/fdb/config.yaml")
}

// applyEnv overrides fields of cfg from FDB_* environment variables,
// which take precedence over the YAML document for the handful of
// settings they cover (spec §6).
func (cfg *Config) applyEnv() {
	if v := os.Getenv("FDB_SCHEMA_FILE"); v != "" {
		cfg.Schema = v
	}
	if v := os.Getenv("FDB_ROOT_DIRECTORY"); v != "" {
		if cfg.Spaces == nil {
			cfg.Spaces = make(map[string]SpaceConfig)
		}
		space := cfg.Spaces["default"]
		space.Roots = []RootConfig{{Path: v, Writable: true, Visit: true}}
		cfg.Spaces["default"] = space
	}
	if v := os.Getenv("FDB_DEDUPLICATE_FIELDS"); v != "" {
		cfg.Deduplicate = isTruthy(v)
	}
	if v := os.Getenv("FDB_SEEKABLE_DATA_HANDLE"); v != "" {
		cfg.SeekableHandle = isTruthy(v)
	}
	if v := os.Getenv("FDB_ROOTS_FILE"); v != "" {
		cfg.RootsFile = v
	}
	if v := os.Getenv("FDB_SPACES_FILE"); v != "" {
		cfg.SpacesFile = v
	}
	if v := os.Getenv("FDB_AUX_EXTENSIONS"); v != "" {
		cfg.AuxExtensions = splitCommaList(v)
	}
}

func splitCommaList(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	default:
		return false
	}
}
