// Package admission implements resource-pressure-based admission control.
//
// Every request passes a fast admission check before any quota accounting:
// the controller samples node-local resource usage, folds it together with
// queue fullness into a single pressure score, and rejects a priority-scaled
// fraction of traffic when the node is under stress. Rejecting early is the
// point; work that is admitted and then starved is strictly worse than work
// that is turned away with a retry hint.
//
// All state here is process-local. Resource pressure is inherently per-node,
// so nothing in this package coordinates across instances.
package admission
