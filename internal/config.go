package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sensiblebit/cmsresolve/internal/certstore"
	"github.com/sensiblebit/cmsresolve/internal/recipient"
)

// StoreConfig names one store in the search list.
type StoreConfig struct {
	Name            string `yaml:"name"`
	Location        string `yaml:"location"`
	IncludeArchived bool   `yaml:"includeArchived,omitempty"`
}

// Config is the YAML configuration file.
type Config struct {
	LogLevel   string        `yaml:"logLevel,omitempty"`
	UserDir    string        `yaml:"userStoreDir,omitempty"`
	MachineDir string        `yaml:"machineStoreDir,omitempty"`
	Search     []StoreConfig `yaml:"search,omitempty"`
}

// DefaultSearch is used when the configuration names no stores.
func DefaultSearch() []StoreConfig {
	return []StoreConfig{
		{Name: "My", Location: "CurrentUser"},
		{Name: "AddressBook", Location: "CurrentUser"},
		{Name: "My", Location: "LocalMachine"},
	}
}

// LoadConfig reads the YAML configuration at path. A missing file yields
// the zero Config when optional is true.
func LoadConfig(path string, optional bool) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Opener builds a store opener from the configured directories, falling back
// to the platform defaults for any left empty.
func (c *Config) Opener(tracker *certstore.Tracker) (*certstore.Opener, error) {
	o, err := certstore.DefaultOpener()
	if err != nil {
		return nil, err
	}
	if c.UserDir != "" {
		o.UserDir = expandHome(c.UserDir)
	}
	if c.MachineDir != "" {
		o.MachineDir = expandHome(c.MachineDir)
	}
	o.Tracker = tracker
	return o, nil
}

// StoreRefs converts the search list, or DefaultSearch when it is empty.
func (c *Config) StoreRefs() ([]recipient.StoreRef, error) {
	search := c.Search
	if len(search) == 0 {
		search = DefaultSearch()
	}
	refs := make([]recipient.StoreRef, 0, len(search))
	for _, s := range search {
		ref, err := ParseStoreRef(s.Name, s.Location)
		if err != nil {
			return nil, err
		}
		if s.IncludeArchived {
			ref.Flags |= certstore.IncludeArchived
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ParseStoreRef builds a store reference from a name and location name.
// The name may carry the location itself as "Location\Name" or
// "Location/Name", in which case location is ignored.
func ParseStoreRef(name, location string) (recipient.StoreRef, error) {
	if i := strings.IndexAny(name, `\/`); i >= 0 {
		location, name = name[:i], name[i+1:]
	}
	loc, err := certstore.ParseLocation(location)
	if err != nil {
		return recipient.StoreRef{}, err
	}
	if name == "" {
		return recipient.StoreRef{}, errors.New("store name is empty")
	}
	return recipient.StoreRef{Name: name, Location: loc}, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
