package diagnostics

import (
	"github.com/fluxgrid/silo/actor"
)

// ActivationTableSource adapts an actor.ActivationTable to Source, stamping
// every entry with the local silo id the table is running on.
type ActivationTableSource struct {
	Table  *actor.ActivationTable
	SiloID string
}

// Actors implements Source.
func (s ActivationTableSource) Actors() []ActorInfo {
	snap := s.Table.Snapshot()
	out := make([]ActorInfo, 0, len(snap))
	for _, a := range snap {
		out = append(out, ActorInfo{
			ActorType:   a.ActorType,
			ActorID:     a.ActorID,
			SiloID:      s.SiloID,
			IdleSeconds: a.IdleSince().Seconds(),
		})
	}
	return out
}
