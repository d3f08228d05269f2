package migration

import (
	"fmt"
	"strings"
)

// VolumeKind tags the two Volume variants. Modeled as a tagged union
// rather than open inheritance: dispatch happens once, in ParseSpec, not
// through a type hierarchy.
type VolumeKind string

const (
	VolumeKindBind  VolumeKind = "bind"
	VolumeKindNamed VolumeKind = "named"
)

// Volume is one compose volume entry, expanded from the stack's compose
// text against the source host's appdata_path.
type Volume struct {
	Kind VolumeKind

	// SourcePath is set for VolumeKindBind: an absolute host path.
	SourcePath string
	// VolumeName is set for VolumeKindNamed: a Docker-managed volume name.
	VolumeName string

	Destination string
	Mode        string

	// Spec is the original "source:dest[:mode]" string this Volume was
	// parsed from, preserved so RenderSpec round-trips exactly.
	Spec string
}

// ParseSpec parses one compose volume entry of the form
// "source:destination[:mode]", expanding any ${APPDATA_PATH} token against
// appdataPath. A source beginning with "/" or "." after expansion is a
// bind mount; otherwise it names a Docker-managed volume.
func ParseSpec(spec, appdataPath string) (Volume, error) {
	expanded := strings.ReplaceAll(spec, "${APPDATA_PATH}", appdataPath)

	parts := strings.Split(expanded, ":")
	if len(parts) < 2 {
		return Volume{}, fmt.Errorf("migration: volume spec %q missing destination", spec)
	}

	source := parts[0]
	dest := parts[1]
	mode := ""
	if len(parts) >= 3 {
		mode = parts[2]
	}

	v := Volume{Destination: dest, Mode: mode, Spec: spec}
	if strings.HasPrefix(source, "/") || strings.HasPrefix(source, ".") {
		v.Kind = VolumeKindBind
		v.SourcePath = source
	} else {
		v.Kind = VolumeKindNamed
		v.VolumeName = source
	}
	return v, nil
}

// RenderSpec renders v back into a compose-file volume string. When Spec
// is present it is returned verbatim, so ParseSpec(RenderSpec(v), ...)
// round-trips exactly; Spec is only reconstructed from fields for a Volume
// built programmatically (e.g. after a path-mapping rewrite).
func RenderSpec(v Volume) string {
	if v.Spec != "" {
		return v.Spec
	}
	source := v.SourcePath
	if v.Kind == VolumeKindNamed {
		source = v.VolumeName
	}
	if v.Mode != "" {
		return fmt.Sprintf("%s:%s:%s", source, v.Destination, v.Mode)
	}
	return fmt.Sprintf("%s:%s", source, v.Destination)
}

// BindMounts filters vols down to the bind-mount variant, the only kind
// the path-mapper and transfer engine act on directly.
func BindMounts(vols []Volume) []Volume {
	var out []Volume
	for _, v := range vols {
		if v.Kind == VolumeKindBind {
			out = append(out, v)
		}
	}
	return out
}
