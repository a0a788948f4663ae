// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package version provides the semantic version type silos advertise in
// membership (spec §9: "version-aware routing").
package version

import "fmt"

// Semantic is a silo's advertised build version, gossiped through
// membership.SiloInfo.Version and compared on every membership update to
// detect a rolling upgrade in progress.
type Semantic struct {
	Major int
	Minor int
	Patch int
}

func (s Semantic) String() string {
	return fmt.Sprintf("%d.%d.%d", s.Major, s.Minor, s.Patch)
}

// Compare returns -1, 0, or 1 as s is less than, equal to, or greater than
// o, ordering by Major then Minor then Patch.
func (s Semantic) Compare(o Semantic) int {
	if s.Major != o.Major {
		if s.Major < o.Major {
			return -1
		}
		return 1
	}
	if s.Minor != o.Minor {
		if s.Minor < o.Minor {
			return -1
		}
		return 1
	}
	if s.Patch != o.Patch {
		if s.Patch < o.Patch {
			return -1
		}
		return 1
	}
	return 0
}
