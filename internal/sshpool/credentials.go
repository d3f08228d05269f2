package sshpool

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/artemis/fleetmigrate/internal/config"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// FileCredentials resolves signers from identity files on disk and verifies
// host keys against a standard known_hosts file. This is the production
// Credentials implementation; tests use an in-memory stand-in instead.
type FileCredentials struct {
	KnownHostsPath string
}

// NewFileCredentials builds a FileCredentials using knownHostsPath, or
// ~/.ssh/known_hosts when empty.
func NewFileCredentials(knownHostsPath string) (*FileCredentials, error) {
	if knownHostsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("sshpool: resolve home directory: %w", err)
		}
		knownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}
	return &FileCredentials{KnownHostsPath: knownHostsPath}, nil
}

// SignerFor loads and parses the private key named by h.IdentityFile.
func (c *FileCredentials) SignerFor(h config.Host) (ssh.Signer, error) {
	if h.IdentityFile == "" {
		return nil, fmt.Errorf("sshpool: host %s has no identity_file configured", h.ID)
	}
	key, err := os.ReadFile(h.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("sshpool: read identity file %s: %w", h.IdentityFile, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("sshpool: parse identity file %s: %w", h.IdentityFile, err)
	}
	return signer, nil
}

// HostKeyCallbackFor builds a knownhosts.HostKeyCallback against the
// configured known_hosts file, refusing unknown or mismatched host keys
// rather than trusting on first use.
func (c *FileCredentials) HostKeyCallbackFor(h config.Host) (ssh.HostKeyCallback, error) {
	cb, err := knownhosts.New(c.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("sshpool: load known_hosts %s: %w", c.KnownHostsPath, err)
	}
	return cb, nil
}
