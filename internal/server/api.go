package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/migration"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListHosts returns every host in the fleet registry.
func (s *Server) ListHosts(c *gin.Context) {
	ids := s.hosts.IDs()
	hosts := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		h, _ := s.hosts.Get(id)
		hosts = append(hosts, gin.H{
			"id":           h.ID,
			"hostname":     h.Hostname,
			"appdata_path": h.AppdataPath,
			"zfs_capable":  h.ZFSCapable,
		})
	}
	c.JSON(http.StatusOK, gin.H{"hosts": hosts})
}

// StartMigration kicks off a P1-P16 run for the requested stack. It
// responds once the pipeline terminates (success, failure, or rollback)
// and then broadcasts the same result to WebSocket clients as a
// "migration_complete" event; no per-phase events are sent. Progress of
// a run in flight is read from GetMigrationStatus.
func (s *Server) StartMigration(c *gin.Context) {
	var req struct {
		SourceHostID   string `json:"source_host_id" binding:"required"`
		TargetHostID   string `json:"target_host_id" binding:"required"`
		StackName      string `json:"stack_name" binding:"required"`
		DryRun         bool   `json:"dry_run"`
		SkipStopSource bool   `json:"skip_stop_source"`
		RemoveSource   bool   `json:"remove_source"`
		Recursive      bool   `json:"recursive"`
		ForceReceive   bool   `json:"force_receive"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.orchestrator == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "migration orchestrator not initialized"})
		return
	}

	migReq := migration.Request{
		SourceHostID:   req.SourceHostID,
		TargetHostID:   req.TargetHostID,
		StackName:      req.StackName,
		DryRun:         req.DryRun,
		SkipStopSource: req.SkipStopSource,
		RemoveSource:   req.RemoveSource,
		Recursive:      req.Recursive,
		ForceReceive:   req.ForceReceive,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Hour)
	defer cancel()

	result, err := s.orchestrator.MigrateStack(ctx, migReq)
	if err != nil {
		s.logger.Error("migration failed to start", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.hub.BroadcastEvent("migration_complete", result)
	c.JSON(http.StatusOK, result)
}

// GetMigrationStatus returns the status, current phase, risk, warnings and
// errors of an in-flight or terminated migration context.
func (s *Server) GetMigrationStatus(c *gin.Context) {
	id := c.Param("id")

	if s.orchestrator == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "migration orchestrator not initialized"})
		return
	}

	mc, ok := s.orchestrator.GetContext(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown migration id %q", id)})
		return
	}

	snap := mc.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"migration_id":  snap.MigrationID,
		"status":        snap.Status,
		"current_phase": snap.CurrentPhase,
		"risk":          snap.Risk,
		"warnings":      snap.Warnings,
		"errors":        snap.Errors,
	})
}

// CancelMigration requests cancellation of an in-flight migration.
func (s *Server) CancelMigration(c *gin.Context) {
	id := c.Param("id")

	if s.orchestrator == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "migration orchestrator not initialized"})
		return
	}

	if err := s.orchestrator.Cancel(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "cancel_requested",
		"message": "migration will stop at the next phase boundary and roll back if past P9",
	})
}

// GetResourceCounts reports coarse fleet sizing for the dashboard.
func (s *Server) GetResourceCounts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"hosts": len(s.hosts.IDs()),
	})
}

func (s *Server) hostOrNotFound(c *gin.Context) (config.Host, bool) {
	id := c.Param("host_id")
	h, ok := s.hosts.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown host %q", id)})
		return config.Host{}, false
	}
	return h, true
}

// ListStacks enumerates the stacks deployed on one fleet host.
func (s *Server) ListStacks(c *gin.Context) {
	host, ok := s.hostOrNotFound(c)
	if !ok {
		return
	}
	stacks, err := migration.ListStacks(c.Request.Context(), s.exec, host)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stacks": stacks})
}

// GetCompose returns a stack's docker-compose text from a fleet host.
func (s *Server) GetCompose(c *gin.Context) {
	host, ok := s.hostOrNotFound(c)
	if !ok {
		return
	}
	text, err := migration.GetCompose(c.Request.Context(), s.exec, host, c.Param("stack"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, text)
}

// ManageStack runs a docker-compose lifecycle action against a stack
// already deployed on a fleet host.
func (s *Server) ManageStack(c *gin.Context) {
	host, ok := s.hostOrNotFound(c)
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := migration.ManageStack(c.Request.Context(), s.exec, host, c.Param("stack"), migration.ManageAction(req.Action))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"output": out})
}

// DeployStack writes and brings up a stack on a fleet host outside of a
// migration run.
func (s *Server) DeployStack(c *gin.Context) {
	host, ok := s.hostOrNotFound(c)
	if !ok {
		return
	}

	var req struct {
		ComposeText string `json:"compose_text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := migration.DeployStack(c.Request.Context(), s.exec, host, c.Param("stack"), req.ComposeText); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deployed"})
}
