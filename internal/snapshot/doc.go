// Package snapshot captures still images from ANPR cameras for the
// dashboard. It only reads camera configuration; reachability is the
// status probe's business.
package snapshot
