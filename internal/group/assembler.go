// Package group clusters raw subband files into coherent observation
// groups despite timestamp jitter, and drives the Group state machine.
package group

import (
	"fmt"
	"sort"
	"time"

	"github.com/dsa110/continuum-pipeline/internal/logging"
	"github.com/dsa110/continuum-pipeline/internal/store"
)

// member is one file inside a Cluster, retained with its size so a
// duplicate subband collision can be resolved by keeping the larger file.
type member struct {
	path      string
	timestamp time.Time
	size      int64
}

// Cluster is a set of raw files believed to belong to the same
// observation, before it is persisted as a Group.
type Cluster struct {
	Members map[int]member // subband_index -> member
}

// GroupID is the canonical identifier: the ISO-8601 timestamp of the
// member with the smallest subband_index. Duplicate resolution leaves one
// member per subband_index (the larger file), so there is no tie to break.
func (c Cluster) GroupID() string {
	minSB := -1
	for sb := range c.Members {
		if minSB == -1 || sb < minSB {
			minSB = sb
		}
	}
	if minSB == -1 {
		return ""
	}
	return c.Members[minSB].timestamp.UTC().Format("2006-01-02T15:04:05")
}

// MemberPaths converts the cluster into the subband->path map stored on
// a Group record.
func (c Cluster) MemberPaths() map[int]string {
	out := make(map[int]string, len(c.Members))
	for sb, m := range c.Members {
		out[sb] = m.path
	}
	return out
}

// Assemble clusters a File Index snapshot into groups. It performs no
// clock or store calls — determinism (the spec's Property 7: same
// snapshot and tolerance produce identical groups across runs) follows
// directly from operating on the given slice alone.
//
// Two files join the same cluster iff the difference between the file's
// timestamp and the cluster's head (its first member's timestamp) is
// ≤ toleranceS seconds. A file whose subband_index collides with one
// already in the cluster is a duplicate, not a new cluster: the larger
// file is kept and the collision logged. A file exceeding the tolerance
// from the head starts a new cluster; clusters are never heuristically
// merged back together.
func Assemble(files []store.RawFile, toleranceS int) []Cluster {
	sorted := make([]store.RawFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].SubbandIndex < sorted[j].SubbandIndex
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var clusters []Cluster
	var current *Cluster
	var head time.Time
	tolerance := time.Duration(toleranceS) * time.Second

	for _, f := range sorted {
		if current == nil || f.Timestamp.Sub(head) > tolerance {
			if current != nil {
				clusters = append(clusters, *current)
			}
			current = &Cluster{Members: map[int]member{}}
			head = f.Timestamp
		}

		if existing, dup := current.Members[f.SubbandIndex]; dup {
			if f.SizeBytes > existing.size {
				logging.GroupDebug("duplicate subband %d in cluster at %s: keeping larger file %s (%d > %d bytes)",
					f.SubbandIndex, head.Format(time.RFC3339), f.Path, f.SizeBytes, existing.size)
				current.Members[f.SubbandIndex] = member{path: f.Path, timestamp: f.Timestamp, size: f.SizeBytes}
			} else {
				logging.GroupDebug("duplicate subband %d in cluster at %s: keeping existing larger file %s",
					f.SubbandIndex, head.Format(time.RFC3339), existing.path)
			}
			continue
		}
		current.Members[f.SubbandIndex] = member{path: f.Path, timestamp: f.Timestamp, size: f.SizeBytes}
	}
	if current != nil {
		clusters = append(clusters, *current)
	}
	return clusters
}

// ErrEmptyCluster is returned when a cluster has no members to derive a
// canonical GroupID from — never expected from Assemble's own output.
var ErrEmptyCluster = fmt.Errorf("group: cluster has no members")
