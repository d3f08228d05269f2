package executor

import "time"

// Default budgets for remote command categories. Every call into this
// package carries one of these unless the caller overrides it explicitly
// via RunOptions.Timeout.
const (
	ShortTimeout   = 30 * time.Second
	DockerTimeout  = 60 * time.Second
	GeneralTimeout = 120 * time.Second
	ArchiveTimeout = 300 * time.Second
	RsyncTimeout   = 600 * time.Second
	BackupTimeout  = 300 * time.Second

	// killGrace is how long SIGTERM gets to work before SIGKILL follows.
	killGrace = 5 * time.Second
)
