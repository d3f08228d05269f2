package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/artemis/fleetmigrate/internal/executor"
	"github.com/artemis/fleetmigrate/internal/sshcmd"
)

// Rsync moves data directly over SSH, no intermediate archive.
type Rsync struct {
	exec *executor.Executor
}

// NewRsync builds an Rsync transfer dispatching remote commands through exec.
func NewRsync(exec *executor.Executor) *Rsync { return &Rsync{exec: exec} }

// Type implements Transfer.
func (r *Rsync) Type() string { return "rsync" }

// Do runs one rsync invocation per source path, from req.Source talking
// directly to req.Target over a nested SSH connection built through
// sshcmd, never hand-interpolated.
func (r *Rsync) Do(ctx context.Context, req Request) (Result, error) {
	result := Result{Type: "rsync"}

	if req.DryRun {
		result.Success = true
		return result, nil
	}

	zstdCapable := r.probeZstd(ctx, req)

	var totalFiles int
	var totalBytes int64
	var lastRate, lastSpeedup string

	for _, srcPath := range req.SourcePaths {
		cleanSrc, err := sshcmd.AbsPath(srcPath)
		if err != nil {
			return Result{}, err
		}
		targetPath, err := r.targetPathFor(req, cleanSrc)
		if err != nil {
			return Result{}, err
		}

		mkdirCmd := fmt.Sprintf("mkdir -p %s", shq(targetPath))
		if _, err := r.exec.Run(ctx, req.Target, mkdirCmd, executor.RunOptions{Timeout: executor.ShortTimeout}); err != nil {
			return Result{}, err
		}

		if !r.probeReadable(ctx, req, cleanSrc) {
			sub, err := r.doContainerizedPath(ctx, req, cleanSrc, targetPath)
			if err != nil {
				return Result{}, err
			}
			totalFiles += sub.FilesTransferred
			totalBytes += sub.TotalBytes
			continue
		}

		cmd, err := r.buildCommand(req, cleanSrc, targetPath, zstdCapable)
		if err != nil {
			return Result{}, err
		}

		res, err := r.exec.Run(ctx, req.Source, cmd, executor.RunOptions{Timeout: executor.RsyncTimeout})
		if err != nil {
			return Result{}, err
		}

		files, bytesTransferred, rate, speedup := parseRsyncStats(res.Stdout)
		totalFiles += files
		totalBytes += bytesTransferred
		if rate != "" {
			lastRate = rate
		}
		if speedup != "" {
			lastSpeedup = speedup
		}
	}

	result.Success = true
	result.FilesTransferred = totalFiles
	result.TotalBytes = totalBytes
	result.Rate = lastRate
	result.Speedup = lastSpeedup
	return result, nil
}

// targetPathFor resolves where one source path lands on the target: the
// caller-computed mapping when present, TargetBase/basename otherwise.
func (r *Rsync) targetPathFor(req Request, cleanSrc string) (string, error) {
	if mapped, ok := req.PathMap[cleanSrc]; ok {
		return sshcmd.AbsPath(mapped)
	}
	idx := strings.LastIndex(cleanSrc, "/")
	return sshcmd.AbsPath(req.TargetBase + "/" + cleanSrc[idx+1:])
}

// probeZstd checks whether the source host's rsync supports
// --compress-choice, available from rsync 3.2.0 onward.
func (r *Rsync) probeZstd(ctx context.Context, req Request) bool {
	res, err := r.exec.Run(ctx, req.Source, "rsync --version | head -1", executor.RunOptions{Timeout: executor.ShortTimeout})
	if err != nil || res.ExitCode != 0 {
		return false
	}
	return strings.Contains(res.Stdout, "version 3.2") || strings.Contains(res.Stdout, "version 3.3") ||
		strings.Contains(res.Stdout, "version 3.4")
}

func (r *Rsync) buildCommand(req Request, srcPath, targetPath string, zstdCapable bool) (string, error) {
	sshArgs, err := sshcmd.SSHBaseArgs(req.Target)
	if err != nil {
		return "", err
	}
	// Drop the trailing user@host so rsync's -e can append its own target
	// address; keep only the ssh options.
	sshOpts := sshArgs[:len(sshArgs)-1]

	user, err := sshcmd.Username(req.Target.User)
	if err != nil {
		return "", err
	}
	hostname, err := sshcmd.Hostname(req.Target.Hostname)
	if err != nil {
		return "", err
	}

	flags := []string{"-a", "-P", "--stats", "-z", "--compress-level=6"}
	if zstdCapable {
		flags = append(flags, "--compress-choice=zstd")
	}
	if req.Delete {
		flags = append(flags, "--delete")
	}

	parts := append([]string{"rsync"}, flags...)
	parts = append(parts, "-e", strings.Join(sshOpts, " "))
	parts = append(parts, srcPath+"/", fmt.Sprintf("%s@%s:%s/", user, hostname, targetPath))

	return sshcmd.RemoteCDThenExec("/", parts, nil)
}

// probeReadable reports whether the SSH user can read srcPath directly; a
// failed probe routes that path through the containerized variant instead.
func (r *Rsync) probeReadable(ctx context.Context, req Request, srcPath string) bool {
	cmd := fmt.Sprintf("test -r %s", shq(srcPath))
	res, err := r.exec.Run(ctx, req.Source, cmd, executor.RunOptions{Timeout: executor.ShortTimeout})
	if err != nil {
		if _, isExit := err.(*executor.ExitError); isExit {
			return false
		}
		// On a transport failure, let the real rsync attempt surface the
		// error rather than silently switching variants.
		return true
	}
	return res.ExitCode == 0
}

// doContainerizedPath runs rsync for one source path inside a container on
// the source host: a read-only bind mount of the data and only the
// capabilities rsync needs to read other users' files and preserve
// ownership metadata.
func (r *Rsync) doContainerizedPath(ctx context.Context, req Request, cleanSrc, targetPath string) (Result, error) {
	sshArgs, err := sshcmd.SSHBaseArgs(req.Target)
	if err != nil {
		return Result{}, err
	}
	sshOpts := strings.Join(sshArgs[:len(sshArgs)-1], " ")
	user, err := sshcmd.Username(req.Target.User)
	if err != nil {
		return Result{}, err
	}
	hostname, err := sshcmd.Hostname(req.Target.Hostname)
	if err != nil {
		return Result{}, err
	}

	innerRsync := fmt.Sprintf(
		"rsync -a -P --stats -z --compress-level=6 -e %q /data/ %s@%s:%s/",
		sshOpts, user, hostname, targetPath,
	)

	parts := []string{
		"docker", "run", "--rm",
		"--cap-drop=ALL", "--cap-add=DAC_OVERRIDE", "--cap-add=CHOWN",
		"-v", fmt.Sprintf("%s:/data:ro", cleanSrc),
		"instrumentisto/rsync-ssh",
		"sh", "-c", innerRsync,
	}

	cmd, err := sshcmd.RemoteCDThenExec("/", parts, nil)
	if err != nil {
		return Result{}, err
	}

	res, err := r.exec.Run(ctx, req.Source, cmd, executor.RunOptions{Timeout: executor.RsyncTimeout})
	if err != nil {
		return Result{}, err
	}
	files, bytesTransferred, _, _ := parseRsyncStats(res.Stdout)
	return Result{Type: "rsync", Success: true, FilesTransferred: files, TotalBytes: bytesTransferred}, nil
}

// DoContainerized forces every source path through the containerized
// variant, for callers that already know direct reads will fail.
func (r *Rsync) DoContainerized(ctx context.Context, req Request) (Result, error) {
	result := Result{Type: "rsync"}
	if req.DryRun {
		result.Success = true
		return result, nil
	}

	var totalFiles int
	var totalBytes int64

	for _, srcPath := range req.SourcePaths {
		cleanSrc, err := sshcmd.AbsPath(srcPath)
		if err != nil {
			return Result{}, err
		}
		targetPath, err := r.targetPathFor(req, cleanSrc)
		if err != nil {
			return Result{}, err
		}

		mkdirCmd := fmt.Sprintf("mkdir -p %s", shq(targetPath))
		if _, err := r.exec.Run(ctx, req.Target, mkdirCmd, executor.RunOptions{Timeout: executor.ShortTimeout}); err != nil {
			return Result{}, err
		}

		sub, err := r.doContainerizedPath(ctx, req, cleanSrc, targetPath)
		if err != nil {
			return Result{}, err
		}
		totalFiles += sub.FilesTransferred
		totalBytes += sub.TotalBytes
	}

	result.Success = true
	result.FilesTransferred = totalFiles
	result.TotalBytes = totalBytes
	return result, nil
}
