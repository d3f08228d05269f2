package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Host describes a single fleet member reachable over SSH.
type Host struct {
	ID           string `yaml:"id"`
	Hostname     string `yaml:"hostname"`
	User         string `yaml:"user"`
	Port         int    `yaml:"port"`
	IdentityFile string `yaml:"identity_file"`
	AppdataPath  string `yaml:"appdata_path"`

	// ZFSCapable and ZFSDataset are operator-declared capability hints;
	// the transfer engine still live-probes before trusting them.
	ZFSCapable bool   `yaml:"zfs_capable"`
	ZFSDataset string `yaml:"zfs_dataset"`
}

// HostRegistry is the read-only fleet inventory injected at startup.
type HostRegistry struct {
	hosts map[string]Host
}

type hostsFile struct {
	Hosts []Host `yaml:"hosts"`
}

// LoadHostRegistry reads the fleet registry from a YAML file.
func LoadHostRegistry(path string) (*HostRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read host registry: %w", err)
	}

	var parsed hostsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse host registry: %w", err)
	}

	reg := &HostRegistry{hosts: make(map[string]Host, len(parsed.Hosts))}
	for _, h := range parsed.Hosts {
		if h.ID == "" {
			return nil, fmt.Errorf("host registry entry missing id")
		}
		if h.Port == 0 {
			h.Port = 22
		}
		reg.hosts[h.ID] = h
	}
	return reg, nil
}

// NewHostRegistry builds a registry from an explicit slice, mainly for tests.
func NewHostRegistry(hosts ...Host) *HostRegistry {
	reg := &HostRegistry{hosts: make(map[string]Host, len(hosts))}
	for _, h := range hosts {
		if h.Port == 0 {
			h.Port = 22
		}
		reg.hosts[h.ID] = h
	}
	return reg
}

// Get resolves a host descriptor by logical id.
func (r *HostRegistry) Get(id string) (Host, bool) {
	h, ok := r.hosts[id]
	return h, ok
}

// IDs returns every registered host id.
func (r *HostRegistry) IDs() []string {
	ids := make([]string, 0, len(r.hosts))
	for id := range r.hosts {
		ids = append(ids, id)
	}
	return ids
}
