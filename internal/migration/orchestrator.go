package migration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/artemis/fleetmigrate/internal/backup"
	"github.com/artemis/fleetmigrate/internal/compose"
	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
	"github.com/artemis/fleetmigrate/internal/inventory"
	"github.com/artemis/fleetmigrate/internal/observability"
	"github.com/artemis/fleetmigrate/internal/transfer"
	"go.uber.org/zap"
)

// Orchestrator drives one-at-a-time, phase-ordered stack migrations. Many
// Orchestrator.MigrateStack calls may run concurrently, each against its
// own Context; the only state shared between them lives in the executor's
// underlying SSH pool and in the backup manager's deletion manifest.
type Orchestrator struct {
	hosts     *config.HostRegistry
	exec      *executor.Executor
	backupMgr *backup.Manager
	probe     transfer.ZFSProbe
	logger    *observability.Logger
	metrics   *observability.Metrics

	mu       sync.Mutex
	contexts map[string]*Context
}

// NewOrchestrator wires an orchestrator from its already-constructed
// dependencies. None of them are ambient globals.
func NewOrchestrator(hosts *config.HostRegistry, exec *executor.Executor, backupMgr *backup.Manager, probe transfer.ZFSProbe, logger *observability.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		hosts:     hosts,
		exec:      exec,
		backupMgr: backupMgr,
		probe:     probe,
		logger:    logger,
		metrics:   metrics,
		contexts:  make(map[string]*Context),
	}
}

func migrationID(req Request) string {
	if req.MigrationID != "" {
		return req.MigrationID
	}
	return fmt.Sprintf("%s__%s__%s", req.SourceHostID, req.TargetHostID, req.StackName)
}

// MigrateStack runs the full P1-P16 pipeline for req, or returns the
// cached result immediately if req names a migration context that has
// already terminated successfully (idempotent re-invocation).
func (o *Orchestrator) MigrateStack(ctx context.Context, req Request) (*Result, error) {
	id := migrationID(req)

	o.mu.Lock()
	mc, exists := o.contexts[id]
	if !exists {
		req.MigrationID = id
		mc = newContext(req)
		o.contexts[id] = mc
	}
	o.mu.Unlock()

	if exists && mc.Status == StatusSuccess {
		return toResult(mc), nil
	}

	mc.mu.Lock()
	mc.Status = StatusRunning
	mc.StartedAt = time.Now()
	mc.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	mc.cancel = cancel
	defer cancel()

	if o.metrics != nil {
		o.metrics.MigrationStarted()
	}
	o.run(runCtx, mc)
	if o.metrics != nil {
		o.metrics.MigrationFinished()
	}

	mc.mu.Lock()
	mc.EndedAt = time.Now()
	mc.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordMigration(string(mc.Status), "cold")
	}

	return toResult(mc), nil
}

// GetContext returns the migration context registered under id, if any.
func (o *Orchestrator) GetContext(id string) (*Context, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	mc, ok := o.contexts[id]
	return mc, ok
}

// Cancel requests cancellation of an in-flight migration.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	mc, ok := o.contexts[id]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("migration: unknown id %s", id)
	}
	if mc.cancel != nil {
		mc.cancel()
	}
	return nil
}

func toResult(mc *Context) *Result {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	phases := make([]PhaseResult, 0, len(mc.PhaseResults))
	for _, p := range mc.PhaseResults {
		phases = append(phases, p)
	}

	res := &Result{
		Success:     mc.Status == StatusSuccess,
		MigrationID: mc.MigrationID,
		Status:      mc.Status,
		Phases:      phases,
		Warnings:    append([]string(nil), mc.Warnings...),
		Errors:      append([]string(nil), mc.Errors...),
		Risk:        mc.Risk,
		BackupRef:   mc.BackupRef,
	}
	if mc.TransferResult != nil {
		res.Stats = map[string]any{
			"transfer_type":     mc.TransferMethod,
			"files_transferred": mc.TransferResult.FilesTransferred,
			"total_bytes":       mc.TransferResult.TotalBytes,
			"rate":              mc.TransferResult.Rate,
			"speedup":           mc.TransferResult.Speedup,
		}
	}
	return res
}

// phaseFunc executes one phase's work and returns the result to record;
// run decides from its status and the phase's policy whether to continue.
type phaseFunc func(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult

type phaseSpec struct {
	name   string
	policy FailurePolicy
	fn     phaseFunc
}

// run executes every phase in order, honoring each phase's failure
// policy and the dry-run substitutions (transfer, deploy, verify, and
// source-removal phases report synthetic results instead of mutating
// remote state).
func (o *Orchestrator) run(ctx context.Context, mc *Context) {
	phases := []phaseSpec{
		{"P1_validate_hosts", Fatal, phaseP1},
		{"P2_retrieve_compose", Fatal, phaseP2},
		{"P3_parse_compose", Fatal, phaseP3},
		{"P4_preflight", Fatal, phaseP4},
		{"P5_network_probe", WarnOnly, phaseP5},
		{"P6_risk_assessment", Advisory, phaseP6},
		{"P7_stop_source", Fatal, phaseP7},
		{"P8_path_mapping", Fatal, phaseP8},
		{"P9_backup", WarnOnly, phaseP9},
		{"P10_transfer", FatalRollback, phaseP10},
		{"P11_port_conflicts", Fatal, phaseP11},
		{"P12_rewrite_compose", Fatal, phaseP12},
		{"P13_deploy_target", FatalRollback, phaseP13},
		{"P14_verify", FatalRollback, phaseP14},
		{"P15_remove_source", WarnOnly, phaseP15},
		{"P16_finalize", WarnOnly, phaseP16},
	}

	for _, p := range phases {
		if mc.phaseDone(p.name) {
			continue
		}

		select {
		case <-ctx.Done():
			mc.recordPhase(PhaseResult{Phase: p.name, Status: "failed", Message: "cancelled", StartedAt: time.Now(), EndedAt: time.Now()})
			o.finishCancelled(ctx, mc, p.name)
			return
		default:
		}

		mc.mu.Lock()
		mc.CurrentPhase = p.name
		mc.mu.Unlock()

		started := time.Now()
		result := p.fn(ctx, o, mc)
		result.Phase = p.name
		result.StartedAt = started
		result.EndedAt = time.Now()
		mc.recordPhase(result)

		if o.metrics != nil {
			o.metrics.RecordPhase(p.name, result.Status, result.EndedAt.Sub(result.StartedAt).Seconds())
		}

		if o.logger != nil {
			o.logger.Info("migration phase completed",
				zap.String("migration_id", mc.MigrationID),
				zap.String("phase", p.name),
				zap.String("status", result.Status),
			)
		}

		if result.Status != "failed" {
			continue
		}

		switch p.policy {
		case WarnOnly, Advisory:
			continue
		case Fatal:
			// A Fatal failure after the backup phase still restores the
			// target; before it, no target state has been touched and
			// there is nothing to undo.
			mc.mu.Lock()
			hasBackup := mc.BackupRef != nil
			mc.mu.Unlock()
			if hasBackup && !mc.DryRun {
				o.rollback(ctx, mc)
				return
			}
			mc.mu.Lock()
			mc.Status = StatusFailedRolledBack
			mc.mu.Unlock()
			return
		case FatalRollback:
			if mc.DryRun {
				mc.mu.Lock()
				mc.Status = StatusFailedRolledBack
				mc.mu.Unlock()
				return
			}
			o.rollback(ctx, mc)
			return
		}
	}

	mc.mu.Lock()
	mc.Status = StatusSuccess
	mc.mu.Unlock()
}

func (o *Orchestrator) finishCancelled(ctx context.Context, mc *Context, atPhase string) {
	mc.mu.Lock()
	afterP9 := mc.BackupRef != nil
	mc.mu.Unlock()

	if afterP9 && !mc.DryRun {
		// Rollback itself is never cancellable: it runs on a fresh
		// context so the operator's cancel can't strand a half-restored
		// target.
		o.rollback(context.Background(), mc)
		return
	}
	mc.mu.Lock()
	mc.Status = StatusCancelled
	mc.mu.Unlock()
}

// rollback executes the backup's restore on the target and marks the
// context terminal. It is never invoked for
// SafetyBlocked errors, since those occur before any destructive command.
func (o *Orchestrator) rollback(ctx context.Context, mc *Context) {
	mc.mu.Lock()
	ref := mc.BackupRef
	mc.mu.Unlock()

	if ref == nil {
		mc.mu.Lock()
		mc.Status = StatusFailedRollbackFailed
		mc.mu.Unlock()
		return
	}

	target, ok := o.hosts.Get(mc.TargetHostID)
	if !ok {
		mc.mu.Lock()
		mc.Status = StatusFailedRollbackFailed
		mc.mu.Unlock()
		return
	}

	if err := o.backupMgr.Restore(ctx, target, *ref); err != nil {
		if o.logger != nil {
			o.logger.Error("rollback restore failed", zap.String("migration_id", mc.MigrationID), zap.Error(err))
		}
		mc.mu.Lock()
		mc.Status = StatusFailedRollbackFailed
		mc.mu.Unlock()
		return
	}

	mc.mu.Lock()
	mc.Status = StatusFailedRolledBack
	mc.mu.Unlock()
}

func phaseOK(data map[string]any, msg string) PhaseResult {
	return PhaseResult{Status: "ok", Message: msg, Data: data}
}

func warn(msg string) PhaseResult {
	return PhaseResult{Status: "warn", Message: msg}
}

func failed(err error) PhaseResult {
	return PhaseResult{Status: "failed", Message: err.Error()}
}

func skipped(msg string) PhaseResult {
	return PhaseResult{Status: "skipped", Message: msg}
}

// --- Phases ---

func phaseP1(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	if _, found := o.hosts.Get(mc.SourceHostID); !found {
		return failed(fmt.Errorf("HostNotFound: source host %q", mc.SourceHostID))
	}
	if _, found := o.hosts.Get(mc.TargetHostID); !found {
		return failed(fmt.Errorf("HostNotFound: target host %q", mc.TargetHostID))
	}
	return phaseOK(nil, "source and target host descriptors resolved")
}

func phaseP2(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	source, _ := o.hosts.Get(mc.SourceHostID)

	text, err := GetCompose(ctx, o.exec, source, mc.StackName)
	if err != nil {
		return failed(err)
	}

	mc.mu.Lock()
	mc.ComposeText = text
	mc.mu.Unlock()
	return phaseOK(nil, "compose text retrieved")
}

func phaseP3(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	proj, err := compose.Parse(mc.StackName, mc.ComposeText)
	if err != nil {
		return failed(err)
	}

	source, _ := o.hosts.Get(mc.SourceHostID)
	var vols []Volume
	for _, spec := range proj.ExtractVolumeSpecs() {
		v, err := ParseSpec(spec, source.AppdataPath)
		if err != nil {
			continue
		}
		vols = append(vols, v)
	}

	mc.mu.Lock()
	mc.Volumes = vols
	mc.mu.Unlock()

	return phaseOK(map[string]any{"services": len(proj.Services), "volumes": len(vols)}, "compose parsed")
}

func phaseP4(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	target, _ := o.hosts.Get(mc.TargetHostID)

	result, err := RunPreflight(ctx, o.exec, target, estimateBytesFromVolumes(mc.Volumes))
	if mc.DryRun {
		if err != nil {
			return warn(fmt.Sprintf("dry run: preflight probe failed: %v", err))
		}
		if !result.CanProceed {
			return warn(fmt.Sprintf("dry run: preflight blockers: %s", strings.Join(result.Blockers, "; ")))
		}
		return skipped("dry run: preflight probed but not enforced")
	}
	if err != nil {
		return failed(err)
	}
	if !result.CanProceed {
		return failed(fmt.Errorf("InvalidInput: preflight blockers: %s", strings.Join(result.Blockers, "; ")))
	}
	return phaseOK(nil, "preflight checks passed")
}

func estimateBytesFromVolumes(vols []Volume) int64 {
	// No remote census has run before P4-P6, which use this; assume a
	// conservative 10 GiB per bind mount.
	return int64(len(BindMounts(vols))) * 10 * 1024 * 1024 * 1024
}

func phaseP5(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	source, _ := o.hosts.Get(mc.SourceHostID)
	target, _ := o.hosts.Get(mc.TargetHostID)

	probe, err := ProbeNetwork(ctx, o.exec, source, target, estimateBytesFromVolumes(mc.Volumes))
	if err != nil {
		return warn(err.Error())
	}
	return phaseOK(map[string]any{
		"source_round_trip_ms": probe.SourceRoundTrip.Milliseconds(),
		"target_round_trip_ms": probe.TargetRoundTrip.Milliseconds(),
		"throughput_mbps":      probe.ThroughputMbps,
		"estimate_seconds":     probe.Estimate.Seconds(),
	}, "network probe complete")
}

func phaseP6(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	bind := BindMounts(mc.Volumes)
	score := ScoreRisk(RiskInputs{
		TotalBytes:         estimateBytesFromVolumes(mc.Volumes),
		EstimatedDowntime:  120,
		CriticalFileCount:  0,
		PersistentServices: len(bind),
		TotalServices:      len(mc.Volumes) + 1,
	})

	mc.mu.Lock()
	mc.Risk = score
	mc.mu.Unlock()

	return phaseOK(map[string]any{"risk": score}, "risk assessed")
}

func phaseP7(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	if mc.DryRun {
		return skipped("dry run: source left running")
	}
	source, _ := o.hosts.Get(mc.SourceHostID)

	if mc.SkipStopSource {
		res, err := o.exec.Run(ctx, source, fmt.Sprintf("docker ps --filter label=com.docker.compose.project=%s --format '{{.ID}}'", shq(mc.StackName)), executor.RunOptions{Timeout: executor.DockerTimeout})
		if err != nil || strings.TrimSpace(res.Stdout) != "" {
			return failed(fmt.Errorf("skip_stop_source set but source stack is not verified stopped"))
		}
		return skipped("source stack pre-verified stopped")
	}

	if _, err := ManageStack(ctx, o.exec, source, mc.StackName, ActionDown); err != nil {
		return failed(err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		res, err := o.exec.Run(ctx, source, fmt.Sprintf("docker ps --filter label=com.docker.compose.project=%s --format '{{.ID}}'", shq(mc.StackName)), executor.RunOptions{Timeout: executor.DockerTimeout})
		if err == nil && strings.TrimSpace(res.Stdout) == "" {
			break
		}
		time.Sleep(time.Second)
	}

	time.Sleep(10 * time.Second)
	o.exec.Run(ctx, source, "sync", executor.RunOptions{Timeout: executor.ShortTimeout})

	return phaseOK(nil, "source stack stopped")
}

func phaseP8(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	target, _ := o.hosts.Get(mc.TargetHostID)
	pm := NewPathMapper(mc.StackName, target.AppdataPath)

	mc.mu.Lock()
	original := mc.Volumes
	mapped := pm.MapVolumes(original)

	pathMap := make(map[string]string)
	for i, v := range original {
		if v.Kind == VolumeKindBind {
			pathMap[v.SourcePath] = mapped[i].SourcePath
		}
	}
	mc.MappedVolumes = mapped
	mc.PathMap = pathMap
	mc.mu.Unlock()

	return phaseOK(map[string]any{"mapped_mounts": len(BindMounts(mapped))}, "path mapping computed")
}

func phaseP9(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	target, _ := o.hosts.Get(mc.TargetHostID)

	if mc.DryRun {
		mc.mu.Lock()
		mc.BackupRef = &backup.Record{Type: backup.RecordTypeDirectoryTar, HostID: mc.TargetHostID, StackName: mc.StackName}
		mc.mu.Unlock()
		return skipped("dry run: backup simulated")
	}

	targetDir := target.AppdataPath + "/" + mc.StackName

	var rec backup.Record
	var err error
	if target.ZFSCapable && target.ZFSDataset != "" {
		rec, err = o.backupMgr.BackupZFS(ctx, target, target.ZFSDataset, mc.StackName)
	} else {
		rec, err = o.backupMgr.Backup(ctx, target, targetDir, mc.StackName)
	}
	if err != nil {
		return warn(fmt.Sprintf("backup failed, rollback unavailable if migration fails past this point: %v", err))
	}

	mc.mu.Lock()
	mc.BackupRef = &rec
	mc.mu.Unlock()
	return phaseOK(map[string]any{"artifact": rec.ArtifactRef}, "backup captured")
}

func phaseP10(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	source, _ := o.hosts.Get(mc.SourceHostID)
	target, _ := o.hosts.Get(mc.TargetHostID)

	if mc.DryRun {
		return skipped("dry run: transfer simulated")
	}

	var sourcePaths []string
	for _, v := range BindMounts(mc.Volumes) {
		sourcePaths = append(sourcePaths, v.SourcePath)
	}
	if len(sourcePaths) == 0 {
		return phaseOK(nil, "no bind mounts to transfer")
	}

	method := transfer.SelectMethod(ctx, source, target, o.probe, o.exec)

	req := transfer.Request{
		Source: source, Target: target,
		SourcePaths: sourcePaths, TargetBase: target.AppdataPath, PathMap: mc.PathMap,
		StackName: mc.StackName,
		DryRun:    false, Delete: false, Recursive: mc.Recursive, ForceReceive: mc.ForceReceive,
	}

	started := time.Now()
	res, err := method.Do(ctx, req)
	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		o.metrics.ObserveTransferDuration(method.Type(), status, time.Since(started).Seconds())
	}
	if err != nil {
		return failed(err)
	}

	if o.metrics != nil {
		o.metrics.RecordTransfer(method.Type(), mc.SourceHostID, mc.TargetHostID, float64(res.TotalBytes))
	}

	mc.mu.Lock()
	mc.TransferResult = &res
	mc.TransferMethod = method.Type()
	mc.mu.Unlock()

	return phaseOK(map[string]any{
		"transfer_type":     method.Type(),
		"files_transferred": res.FilesTransferred,
		"bytes":             res.TotalBytes,
	}, "data transferred")
}

func phaseP11(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	target, _ := o.hosts.Get(mc.TargetHostID)

	text := mc.ComposeText
	mc.mu.Lock()
	if mc.RewrittenCompose != "" {
		text = mc.RewrittenCompose
	}
	mc.mu.Unlock()

	proj, err := compose.Parse(mc.StackName, text)
	if err != nil {
		return failed(err)
	}

	if mc.DryRun {
		adjustments, err := ProbePortConflicts(ctx, o.exec, target, proj)
		if err != nil {
			return warn(fmt.Sprintf("dry run: port probe failed: %v", err))
		}
		mc.mu.Lock()
		mc.PortAdjustments = adjustments
		mc.mu.Unlock()
		return phaseOK(map[string]any{"would_adjust": len(adjustments)}, "dry run: port conflicts probed, compose not rewritten")
	}

	rewritten, adjustments, err := ResolvePortConflicts(ctx, o.exec, target, proj, text)
	if err != nil {
		return failed(err)
	}

	mc.mu.Lock()
	mc.RewrittenCompose = rewritten
	mc.PortAdjustments = adjustments
	mc.mu.Unlock()

	if o.metrics != nil && len(adjustments) > 0 {
		o.metrics.RecordPortConflicts(mc.StackName, len(adjustments))
	}

	return phaseOK(map[string]any{"adjustments": len(adjustments)}, "port conflicts resolved")
}

func phaseP12(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	target, _ := o.hosts.Get(mc.TargetHostID)

	text := mc.ComposeText
	mc.mu.Lock()
	if mc.RewrittenCompose != "" {
		text = mc.RewrittenCompose
	}
	mc.mu.Unlock()

	text = compose.RewriteAppdataPath(text, target.AppdataPath)
	text = compose.RewriteBindPaths(text, mc.PathMap)

	if strings.Contains(text, "${APPDATA_PATH}") {
		return failed(fmt.Errorf("compose rewrite left an unresolved ${APPDATA_PATH} token"))
	}

	mc.mu.Lock()
	mc.RewrittenCompose = text
	mc.mu.Unlock()

	return phaseOK(nil, "compose text rewritten for target")
}

func phaseP13(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	target, _ := o.hosts.Get(mc.TargetHostID)

	if mc.DryRun {
		return skipped("dry run: deploy simulated")
	}

	if err := DeployStack(ctx, o.exec, target, mc.StackName, mc.RewrittenCompose); err != nil {
		return failed(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	var running bool
	for time.Now().Before(deadline) {
		res, err := o.exec.Run(ctx, target, fmt.Sprintf("docker ps --filter label=com.docker.compose.project=%s --format '{{.ID}}'", shq(mc.StackName)), executor.RunOptions{Timeout: executor.DockerTimeout})
		if err == nil && strings.TrimSpace(res.Stdout) != "" {
			running = true
			break
		}
		time.Sleep(time.Second)
	}
	if !running {
		return failed(fmt.Errorf("RemoteNonZero: stack did not report running containers within 10s of deploy"))
	}

	return phaseOK(nil, "stack deployed on target")
}

func phaseP14(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	source, _ := o.hosts.Get(mc.SourceHostID)
	target, _ := o.hosts.Get(mc.TargetHostID)

	if mc.DryRun {
		return skipped("dry run: verification simulated")
	}

	var sourcePaths, targetPaths []string
	for _, v := range BindMounts(mc.Volumes) {
		sourcePaths = append(sourcePaths, v.SourcePath)
	}
	for _, v := range BindMounts(mc.MappedVolumes) {
		targetPaths = append(targetPaths, v.SourcePath)
	}

	data := map[string]any{}
	if len(sourcePaths) > 0 {
		sourceInv, err := inventory.Census(ctx, o.exec, source, sourcePaths)
		if err != nil {
			return failed(fmt.Errorf("IntegrityFailure: source census: %w", err))
		}
		targetInv, err := inventory.Census(ctx, o.exec, target, targetPaths)
		if err != nil {
			return failed(fmt.Errorf("IntegrityFailure: target census: %w", err))
		}
		rec := inventory.Reconcile(sourceInv, targetInv)
		if o.metrics != nil {
			o.metrics.ObserveVolumeSize(mc.StackName, float64(sourceInv.TotalBytes))
			for _, c := range rec.Critical {
				if c.Verified {
					o.metrics.RecordChecksumVerification("verified")
				} else {
					o.metrics.RecordChecksumVerification("mismatch")
				}
			}
		}
		if !rec.Passed() {
			return failed(fmt.Errorf("IntegrityFailure: reconciliation failed, file_match=%.1f%% size_match=%.1f%% missing=%d",
				rec.FilesMatchPct, rec.SizeMatchPct, len(rec.MissingFiles)))
		}
		data["file_match_pct"] = rec.FilesMatchPct
		data["size_match_pct"] = rec.SizeMatchPct
	}

	res, err := o.exec.Run(ctx, target, fmt.Sprintf("docker ps --filter label=com.docker.compose.project=%s --format '{{.Names}}: {{.Status}}'", shq(mc.StackName)), executor.RunOptions{Timeout: executor.DockerTimeout})
	if err != nil || strings.TrimSpace(res.Stdout) == "" {
		return failed(fmt.Errorf("IntegrityFailure: no containers found for stack on target"))
	}
	data["containers"] = res.Stdout

	for _, v := range BindMounts(mc.MappedVolumes) {
		if !strings.Contains(v.SourcePath, target.AppdataPath) {
			return failed(fmt.Errorf("IntegrityFailure: mapped mount %s does not contain target appdata_path", v.SourcePath))
		}
	}

	// Probe that data is actually reachable from inside a container, not
	// just present on the host filesystem.
	firstContainer := strings.SplitN(strings.TrimSpace(res.Stdout), ":", 2)[0]
	if firstContainer != "" {
		dest := "/"
		if mounts := BindMounts(mc.MappedVolumes); len(mounts) > 0 {
			dest = mounts[0].Destination
		}
		execCmd := fmt.Sprintf("docker exec %s ls %s >/dev/null 2>&1 || docker exec %s ls / >/dev/null", shq(firstContainer), shq(dest), shq(firstContainer))
		if _, err := o.exec.Run(ctx, target, execCmd, executor.RunOptions{Timeout: executor.DockerTimeout}); err != nil {
			return failed(fmt.Errorf("IntegrityFailure: data not accessible inside container %s", firstContainer))
		}
	}

	logsCmd := fmt.Sprintf("docker compose -p %s logs --tail=50 2>&1 | grep -i error || true", shq(mc.StackName))
	logRes, _ := o.exec.Run(ctx, target, logsCmd, executor.RunOptions{Timeout: executor.DockerTimeout})
	if strings.TrimSpace(logRes.Stdout) != "" {
		return warn("error-level lines found in target stack logs (non-blocking)")
	}

	return phaseOK(data, "post-deploy verification passed")
}

func phaseP15(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	if !mc.RemoveSource {
		return skipped("remove_source not requested")
	}
	if mc.DryRun {
		return skipped("dry run: source removal simulated")
	}

	source, _ := o.hosts.Get(mc.SourceHostID)
	stackDir := source.AppdataPath + "/" + mc.StackName

	cmd := fmt.Sprintf("rm -f %s %s", shq(stackDir+"/docker-compose.yml"), shq(stackDir+"/docker-compose.yaml"))
	if _, err := o.exec.Run(ctx, source, cmd, executor.RunOptions{Timeout: executor.ShortTimeout}); err != nil {
		return warn(fmt.Sprintf("failed to remove source compose file: %v", err))
	}
	return phaseOK(nil, "source compose file removed; data retained")
}

func phaseP16(ctx context.Context, o *Orchestrator, mc *Context) PhaseResult {
	if mc.DryRun {
		return skipped("dry run: nothing to finalize")
	}

	mc.mu.Lock()
	ref := mc.BackupRef
	mc.mu.Unlock()

	if ref != nil && ref.Type == backup.RecordTypeDirectoryTar && ref.ArtifactRef != "" {
		target, _ := o.hosts.Get(mc.TargetHostID)
		if err := o.backupMgr.CleanupDirectoryBackup(ctx, target, *ref); err != nil {
			return warn(fmt.Sprintf("failed to clean up directory backup: %v", err))
		}
	}

	return phaseOK(nil, "migration finalized")
}
