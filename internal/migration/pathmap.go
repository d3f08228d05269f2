package migration

import (
	"path"
	"strings"
)

// PathMapper computes target absolute paths for a stack's bind mounts at
// migration start, per three rules tried in order:
//
//  1. if the source path contains "/<stackName>" as a path segment, the
//     suffix after that segment is reattached under
//     "<targetAppdata>/<stackName>/";
//  2. if that suffix begins with "-" (a sibling directory such as
//     ".../<stackName>-redis"), it is reattached as a sibling of the
//     mapped stack directory instead of nested inside it;
//  3. otherwise the source basename is placed directly under
//     "<targetAppdata>/".
type PathMapper struct {
	stackName     string
	targetAppdata string
}

// NewPathMapper builds a mapper for one stack's migration.
func NewPathMapper(stackName, targetAppdata string) *PathMapper {
	return &PathMapper{stackName: stackName, targetAppdata: targetAppdata}
}

// MapPath applies the path-mapping rule to a single absolute source path.
func (pm *PathMapper) MapPath(sourcePath string) string {
	return MapPath(sourcePath, pm.stackName, pm.targetAppdata)
}

// MapPath is the pure function version of PathMapper.MapPath, exposed
// standalone so callers that only need a one-off mapping don't have to
// construct a PathMapper.
func MapPath(sourcePath, stackName, targetAppdata string) string {
	segment := "/" + stackName
	target := strings.TrimRight(targetAppdata, "/")

	for start := 0; ; {
		idx := strings.Index(sourcePath[start:], segment)
		if idx < 0 {
			break
		}
		idx += start
		suffix := sourcePath[idx+len(segment):]

		// The match counts only where the segment ends at a path
		// separator, at the end, or at a "-" sibling suffix.
		if suffix == "" || suffix[0] == '/' || suffix[0] == '-' {
			return target + "/" + stackName + suffix
		}
		start = idx + 1
	}

	return target + "/" + path.Base(sourcePath)
}

// MapVolumes rewrites every bind-mount Volume's SourcePath to its
// target-host equivalent, leaving named volumes and container
// destinations untouched.
func (pm *PathMapper) MapVolumes(vols []Volume) []Volume {
	out := make([]Volume, len(vols))
	for i, v := range vols {
		out[i] = v
		if v.Kind == VolumeKindBind {
			mapped := pm.MapPath(v.SourcePath)
			if mapped != v.SourcePath {
				out[i].SourcePath = mapped
				out[i].Spec = ""
			}
		}
	}
	return out
}
