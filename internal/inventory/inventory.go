// Package inventory censuses file trees on remote hosts and reconciles a
// source census against a target one after a transfer.
package inventory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
	"github.com/cespare/xxhash/v2"
)

// criticalPatterns are glob suffixes/prefixes identifying files that always
// get a checksum, regardless of size: database files and canonical config
// files.
var criticalPatterns = []string{"*.db", "*.sqlite*", "config.*", "*.conf"}

// Record is the census of a single scanned path.
type Record struct {
	Path          string
	FileCount     int
	DirCount      int
	TotalBytes    int64
	RelativeFiles []string
	Critical      map[string]string
	ScannedAt     time.Time
}

// Aggregate combines Records across every path passed to Census.
type Aggregate struct {
	Records      []Record
	FileCount    int
	DirCount     int
	TotalBytes   int64
	Critical     map[string]string
	ChecksumAlgo string
}

// Reconciliation is the result of comparing a source Aggregate to a target
// Aggregate taken after transfer.
type Reconciliation struct {
	FilesMatchPct float64
	SizeMatchPct  float64
	MissingFiles  []string
	Critical      map[string]CriticalCheck
}

// CriticalCheck is the verification outcome for one critical file.
type CriticalCheck struct {
	Verified bool
	Source   string
	Target   string
}

// Passed reports whether the reconciliation satisfies the pass criterion:
// no missing files, byte totals within 1%, and every critical file verified.
func (r Reconciliation) Passed() bool {
	if len(r.MissingFiles) > 0 {
		return false
	}
	for _, c := range r.Critical {
		if !c.Verified {
			return false
		}
	}
	return r.SizeMatchPct >= 99.0 && r.SizeMatchPct <= 101.0
}

func isCriticalName(name string) bool {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".db"):
		return true
	case strings.Contains(lower, ".sqlite"):
		return true
	case strings.HasPrefix(lower, "config."):
		return true
	case strings.HasSuffix(lower, ".conf"):
		return true
	}
	return false
}

// Census issues the file-count/dir-count/byte-total/relative-listing
// commands for each of paths on host, plus a checksum pass over any files
// matching the critical pattern set. It never unmarshals JSON from the
// remote side; every command's output is plain text parsed here.
func Census(ctx context.Context, exec *executor.Executor, host config.Host, paths []string) (Aggregate, error) {
	agg := Aggregate{Critical: make(map[string]string)}

	algo, err := probeChecksumAlgo(ctx, exec, host)
	if err != nil {
		return Aggregate{}, err
	}
	agg.ChecksumAlgo = algo

	for _, p := range paths {
		rec, err := censusPath(ctx, exec, host, p, algo)
		if err != nil {
			return Aggregate{}, err
		}
		agg.Records = append(agg.Records, rec)
		agg.FileCount += rec.FileCount
		agg.DirCount += rec.DirCount
		agg.TotalBytes += rec.TotalBytes
		for k, v := range rec.Critical {
			agg.Critical[k] = v
		}
	}
	return agg, nil
}

func probeChecksumAlgo(ctx context.Context, exec *executor.Executor, host config.Host) (string, error) {
	res, err := exec.Run(ctx, host, "command -v sha256sum", executor.RunOptions{Timeout: executor.ShortTimeout})
	if err == nil && res.ExitCode == 0 && strings.TrimSpace(res.Stdout) != "" {
		return "sha256sum", nil
	}
	res, err = exec.Run(ctx, host, "command -v md5sum", executor.RunOptions{Timeout: executor.ShortTimeout})
	if err == nil && res.ExitCode == 0 && strings.TrimSpace(res.Stdout) != "" {
		return "md5sum", nil
	}
	return "", fmt.Errorf("inventory: neither sha256sum nor md5sum available on %s", host.Hostname)
}

func censusPath(ctx context.Context, exec *executor.Executor, host config.Host, scanPath, algo string) (Record, error) {
	rec := Record{Path: scanPath, Critical: make(map[string]string), ScannedAt: time.Now().UTC()}

	fileCountCmd := fmt.Sprintf("find %s -type f | wc -l", shq(scanPath))
	res, err := exec.Run(ctx, host, fileCountCmd, executor.RunOptions{Timeout: executor.GeneralTimeout})
	if err != nil {
		return Record{}, err
	}
	rec.FileCount = atoiSafe(res.Stdout)

	dirCountCmd := fmt.Sprintf("find %s -type d | wc -l", shq(scanPath))
	res, err = exec.Run(ctx, host, dirCountCmd, executor.RunOptions{Timeout: executor.GeneralTimeout})
	if err != nil {
		return Record{}, err
	}
	rec.DirCount = atoiSafe(res.Stdout)

	sizeCmd := fmt.Sprintf("du -sb %s | cut -f1", shq(scanPath))
	res, err = exec.Run(ctx, host, sizeCmd, executor.RunOptions{Timeout: executor.GeneralTimeout})
	if err != nil {
		return Record{}, err
	}
	rec.TotalBytes = atoi64Safe(res.Stdout)

	listCmd := fmt.Sprintf("cd %s && find . -type f | sed 's#^\\./##' | sort", shq(scanPath))
	res, err = exec.Run(ctx, host, listCmd, executor.RunOptions{Timeout: executor.GeneralTimeout})
	if err != nil {
		return Record{}, err
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec.RelativeFiles = append(rec.RelativeFiles, line)
		if isCriticalName(path.Base(line)) {
			sum, err := checksumFile(ctx, exec, host, path.Join(scanPath, line), algo)
			if err != nil {
				return Record{}, err
			}
			rec.Critical[line] = sum
		}
	}
	sort.Strings(rec.RelativeFiles)
	return rec, nil
}

func checksumFile(ctx context.Context, exec *executor.Executor, host config.Host, fullPath, algo string) (string, error) {
	cmd := fmt.Sprintf("%s %s | awk '{print $1}'", algo, shq(fullPath))
	res, err := exec.Run(ctx, host, cmd, executor.RunOptions{Timeout: executor.GeneralTimeout})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// shq is a minimal single-quote shell escape for the plain-text read-only
// commands this package issues; it never builds destructive commands, so
// it intentionally does not depend on sshcmd's validators.
func shq(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atoi64Safe(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

// Reconcile compares a source Aggregate against a target Aggregate taken
// after transfer. It compares the critical checksums each census recorded;
// it does not recompute them, and it does not check that both censuses
// used the same ChecksumAlgo (each Census call probes its host's own).
func Reconcile(source, target Aggregate) Reconciliation {
	rec := Reconciliation{Critical: make(map[string]CriticalCheck)}

	if source.FileCount > 0 {
		rec.FilesMatchPct = float64(target.FileCount) / float64(source.FileCount) * 100
	} else {
		rec.FilesMatchPct = 100
	}
	if source.TotalBytes > 0 {
		rec.SizeMatchPct = float64(target.TotalBytes) / float64(source.TotalBytes) * 100
	} else {
		rec.SizeMatchPct = 100
	}

	// The relative-file sets can run to millions of entries for a large
	// stack; key the membership set by xxhash of the path instead of the
	// path itself to keep it compact.
	targetFiles := make(map[uint64]struct{})
	for _, r := range target.Records {
		for _, f := range r.RelativeFiles {
			targetFiles[xxhash.Sum64String(f)] = struct{}{}
		}
	}
	for _, r := range source.Records {
		for _, f := range r.RelativeFiles {
			if _, ok := targetFiles[xxhash.Sum64String(f)]; !ok {
				rec.MissingFiles = append(rec.MissingFiles, f)
			}
		}
	}
	sort.Strings(rec.MissingFiles)

	for relPath, srcSum := range source.Critical {
		tgtSum, ok := target.Critical[relPath]
		rec.Critical[relPath] = CriticalCheck{
			Verified: ok && tgtSum == srcSum,
			Source:   srcSum,
			Target:   tgtSum,
		}
	}
	return rec
}
