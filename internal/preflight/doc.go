// Package preflight provides readiness checks for the paths and resources
// tunedrop depends on.
//
// These checks run in two contexts:
//   - The orchestrator calls CheckInputs before pairing so a run never starts
//     with files it cannot read.
//   - The CLI "tunedrop doctor" command uses RunAll to display environment
//     health.
package preflight
