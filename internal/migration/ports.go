package migration

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/artemis/fleetmigrate/internal/compose"
	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
)

// listeningPorts runs `ss` (falling back to `netstat`) on host and
// returns the set of TCP ports currently bound.
func listeningPorts(ctx context.Context, exec *executor.Executor, host config.Host) (map[int]bool, error) {
	res, err := exec.Run(ctx, host, "ss -ltn 2>/dev/null || netstat -ltn 2>/dev/null", executor.RunOptions{Timeout: executor.ShortTimeout})
	if err != nil {
		return nil, fmt.Errorf("ports: probe listening sockets: %w", err)
	}
	return parseListeningPorts(res.Stdout), nil
}

// parseListeningPorts extracts bound TCP ports from `ss -ltn`/`netstat -ltn`
// output, which both list the local address:port as one of the first few
// whitespace-separated fields on each socket line.
func parseListeningPorts(output string) map[int]bool {
	ports := make(map[int]bool)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		for _, f := range fields {
			if idx := strings.LastIndex(f, ":"); idx >= 0 && idx < len(f)-1 {
				if port, err := strconv.Atoi(f[idx+1:]); err == nil && port > 0 {
					ports[port] = true
				}
			}
		}
	}
	return ports
}

// ProbePortConflicts is the read-only half of port-conflict resolution: it
// probes the target's listening sockets and reports the remaps a real run
// would make, without touching the compose text. Dry runs call this so the
// operator still sees the collisions a live migration would hit.
func ProbePortConflicts(ctx context.Context, exec *executor.Executor, target config.Host, proj *compose.Project) ([]PortAdjustment, error) {
	used, err := listeningPorts(ctx, exec, target)
	if err != nil {
		return nil, err
	}

	var adjustments []PortAdjustment
	for _, p := range proj.ExtractPorts() {
		if !used[p.HostPort] {
			continue
		}
		newPort := p.HostPort + 1
		for used[newPort] {
			newPort++
		}
		used[newPort] = true

		adjustments = append(adjustments, PortAdjustment{
			Service:       p.Service,
			OldHostPort:   p.HostPort,
			NewHostPort:   newPort,
			ContainerPort: p.ContainerPort,
			Protocol:      p.Protocol,
		})
	}
	return adjustments, nil
}

// ResolvePortConflicts implements P11: for each published host port in
// the compose project, probes the target's listening sockets, and
// remaps any colliding port to the next free port starting at
// conflict+1, preserving protocol and container port. It returns the
// rewritten compose text and the list of adjustments made.
func ResolvePortConflicts(ctx context.Context, exec *executor.Executor, target config.Host, proj *compose.Project, text string) (string, []PortAdjustment, error) {
	adjustments, err := ProbePortConflicts(ctx, exec, target, proj)
	if err != nil {
		return text, nil, err
	}

	rewritten := text
	for _, adj := range adjustments {
		old := compose.PortMapping{
			Service:       adj.Service,
			HostPort:      adj.OldHostPort,
			ContainerPort: adj.ContainerPort,
			Protocol:      adj.Protocol,
		}
		rewritten = compose.RewritePort(rewritten, old, adj.NewHostPort)
	}
	return rewritten, adjustments, nil
}
