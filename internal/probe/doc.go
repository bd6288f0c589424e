// Package probe checks whether cameras and gate controllers are reachable.
//
// A camera is online when its ISAPI status endpoint answers with any status
// below 500. A gate is online when its controller answers a status query
// through the gate's control method; a reported open or closed state is
// reconciled into the registry unless an actuation happened after the probe
// started.
//
// The prober has no timers of its own. The scheduler calls CheckAll and the
// API calls Check for on-demand tests.
package probe
