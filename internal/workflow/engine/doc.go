// Package engine executes workflow definitions step by step. It
// resolves each step's input from prior outputs or external seeds,
// invokes agent actions through a collaborator interface under a
// per-step timeout, persists the run record after every transition,
// and fires the workflow's success or failure hook exactly once. A
// step failure fails the run and stops it; the engine never retries.
package engine
