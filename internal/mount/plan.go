package mount

import (
	"sort"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/manifest"
)

// Phase is the orchestrator state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseMountingRoots
	PhaseMountingFiles
	PhaseMountingNested
	PhaseVerifying
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMountingRoots:
		return "mounting-roots"
	case PhaseMountingFiles:
		return "mounting-files"
	case PhaseMountingNested:
		return "mounting-nested"
	case PhaseVerifying:
		return "verifying"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Level is a group of keys that can be mounted in any order once the
// previous levels are mounted.
type Level struct {
	Phase Phase
	Keys  []string
}

// PlanOrder returns the mount levels for m. Empty levels are omitted.
func PlanOrder(m manifest.Manifest) []Level {
	var rootDirs, rootFiles []string
	nested := make(map[int][]string)

	for _, key := range m.Keys() {
		depth := manifest.Depth(key)
		switch {
		case depth > 0:
			nested[depth] = append(nested[depth], key)
		case m[key].Kind() == manifest.KindDirectory:
			rootDirs = append(rootDirs, key)
		default:
			rootFiles = append(rootFiles, key)
		}
	}

	var levels []Level
	if len(rootDirs) > 0 {
		levels = append(levels, Level{Phase: PhaseMountingRoots, Keys: rootDirs})
	}
	if len(rootFiles) > 0 {
		levels = append(levels, Level{Phase: PhaseMountingFiles, Keys: rootFiles})
	}

	depths := make([]int, 0, len(nested))
	for d := range nested {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	for _, d := range depths {
		levels = append(levels, Level{Phase: PhaseMountingNested, Keys: nested[d]})
	}
	return levels
}

// Flatten returns the keys of levels in mount order.
func Flatten(levels []Level) []string {
	var keys []string
	for _, l := range levels {
		keys = append(keys, l.Keys...)
	}
	return keys
}
