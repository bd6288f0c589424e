// Package dashboard derives the overview figures, health banding and
// alerts shown on the operator dashboard. All figures come from one
// consistent registry view per call.
package dashboard
