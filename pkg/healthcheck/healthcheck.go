// Package healthcheck lets components report their condition to the status
// server without depending on it.
package healthcheck

// A Check reports one fact about the process ("listener up", "linked to 3
// peers") and whether that fact is healthy. Checks run on every status page
// request, so they must answer from state they already hold, never by making
// a roundtrip.
type Check func() (detail string, healthy bool)

// SelfChecker is implemented by components that can vouch for their own
// internals.
type SelfChecker interface {
	SelfChecks() []Check
}

// MeshChecker is implemented by components with an opinion about the mesh
// around them, seed links and peer links and registry population.
type MeshChecker interface {
	MeshChecks() []Check
}

// Collect appends candidate's checks to the given slices when it implements
// either checker interface. A candidate implementing neither contributes
// nothing, so callers can hand over components without caring which ones
// report.
func Collect(self, mesh []Check, candidate interface{}) ([]Check, []Check) {
	if sc, ok := candidate.(SelfChecker); ok {
		self = append(self, sc.SelfChecks()...)
	}
	if mc, ok := candidate.(MeshChecker); ok {
		mesh = append(mesh, mc.MeshChecks()...)
	}
	return self, mesh
}
