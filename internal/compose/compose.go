// Package compose parses and rewrites Docker Compose project text
// retrieved from a remote host over SSH. Unlike a local Docker Compose
// client, nothing here ever touches a Docker daemon: the migration
// orchestrator only needs to read declared services, volumes, and ports,
// and to rewrite the compose text before redeploying it on the target.
package compose

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
)

// Project is the subset of a parsed compose file the orchestrator acts on.
type Project struct {
	Name     string
	Services composetypes.Services
	Volumes  composetypes.Volumes
	raw      string
}

// Parse loads compose project text (the content of docker-compose.yml as
// retrieved by `cat` over SSH) without touching a Docker daemon or the
// local filesystem.
func Parse(name, text string) (*Project, error) {
	details := composetypes.ConfigDetails{
		WorkingDir: "/",
		ConfigFiles: []composetypes.ConfigFile{
			{Filename: "docker-compose.yml", Content: []byte(text)},
		},
		Environment: map[string]string{},
	}

	project, err := loader.Load(details, func(o *loader.Options) {
		o.SetProjectName(name, true)
		// Interpolation stays off so ${APPDATA_PATH} tokens survive into
		// the extracted volume specs; expansion against a host's actual
		// appdata path is the migration layer's job, not the parser's.
		o.SkipInterpolation = true
		o.SkipValidation = true
		o.SkipNormalization = true
		o.SkipConsistencyCheck = true
		o.SkipResolveEnvironment = true
	})
	if err != nil {
		return nil, fmt.Errorf("compose: parse %s: %w", name, err)
	}

	return &Project{
		Name:     project.Name,
		Services: project.Services,
		Volumes:  project.Volumes,
		raw:      text,
	}, nil
}

// ExtractVolumeSpecs returns every service's raw "source:dest[:mode]"
// volume strings, in declaration order, for migration.ParseSpec to
// expand against the source host's appdata_path.
func (p *Project) ExtractVolumeSpecs() []string {
	var specs []string
	for _, svc := range p.Services {
		for _, v := range svc.Volumes {
			specs = append(specs, renderServiceVolume(v))
		}
	}
	return specs
}

func renderServiceVolume(v composetypes.ServiceVolumeConfig) string {
	s := v.Source
	if v.Type == "volume" && s == "" {
		s = v.Target
	}
	out := s + ":" + v.Target
	if v.ReadOnly {
		out += ":ro"
	}
	return out
}

// PortMapping is one published host:container port pair declared by a
// service, with protocol carried through for P11's remap rewrite.
type PortMapping struct {
	Service       string
	HostPort      int
	ContainerPort int
	Protocol      string
}

// ExtractPorts collects every published host port across all services.
func (p *Project) ExtractPorts() []PortMapping {
	var out []PortMapping
	for name, svc := range p.Services {
		for _, port := range svc.Ports {
			hostPort, err := strconv.Atoi(port.Published)
			if err != nil {
				continue
			}
			proto := port.Protocol
			if proto == "" {
				proto = "tcp"
			}
			out = append(out, PortMapping{
				Service:       name,
				HostPort:      hostPort,
				ContainerPort: int(port.Target),
				Protocol:      proto,
			})
		}
	}
	return out
}

var appdataTokenPattern = regexp.MustCompile(`\$\{APPDATA_PATH\}`)

// RewriteAppdataPath substitutes every ${APPDATA_PATH} token in the raw
// compose text with targetAppdata. Per the round-trip property, the
// result must contain no remaining token occurrences.
func RewriteAppdataPath(text, targetAppdata string) string {
	return appdataTokenPattern.ReplaceAllString(text, targetAppdata)
}

// RewriteBindPaths substitutes every occurrence of each old bind-mount
// source path with its mapped target path. mappings is keyed by the
// original source path and valued by its target-host equivalent, as
// computed by the caller (migration.PathMapper). Longer source paths are
// substituted first so a parent path can't shadow a nested one sharing
// a prefix.
func RewriteBindPaths(text string, mappings map[string]string) string {
	olds := make([]string, 0, len(mappings))
	for old := range mappings {
		olds = append(olds, old)
	}
	sortByLengthDesc(olds)

	out := text
	for _, old := range olds {
		out = strings.ReplaceAll(out, old, mappings[old])
	}
	return out
}

func sortByLengthDesc(paths []string) {
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0 && len(paths[j-1]) < len(paths[j]); j-- {
			paths[j-1], paths[j] = paths[j], paths[j-1]
		}
	}
}

// RewritePort replaces a single "hostPort:containerPort" occurrence in
// the raw compose text with its remapped host port, preserving protocol
// and container port exactly (P11).
func RewritePort(text string, old PortMapping, newHostPort int) string {
	suffix := ""
	if old.Protocol != "tcp" && old.Protocol != "" {
		suffix = "/" + old.Protocol
	}
	from := fmt.Sprintf(`"%d:%d%s"`, old.HostPort, old.ContainerPort, suffix)
	to := fmt.Sprintf(`"%d:%d%s"`, newHostPort, old.ContainerPort, suffix)
	if strings.Contains(text, from) {
		return strings.ReplaceAll(text, from, to)
	}

	from = fmt.Sprintf("%d:%d%s", old.HostPort, old.ContainerPort, suffix)
	to = fmt.Sprintf("%d:%d%s", newHostPort, old.ContainerPort, suffix)
	return strings.ReplaceAll(text, from, to)
}

// Raw returns the compose text the project was parsed from.
func (p *Project) Raw() string { return p.raw }
