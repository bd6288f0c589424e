// Package gate actuates vehicle gates.
//
// The Actuator enforces the rules around a physical command: an operator
// must be named, only one command per gate may be in flight, a gate already
// in the requested position is not commanded again, and every attempt is
// audited whatever its outcome.
//
// State machine:
//
//	closed --open--> open --close--> closed
//	unknown resolves on the next successful command or probe reconciliation
package gate
