// Package core defines the review lifecycle domain model, the contracts the
// actor runtime and its stores implement, and the service facade that wires
// them together.
package core
