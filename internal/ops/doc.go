// Package ops defines what flows through an engine chain: qubit handles and
// weak refs, gates, tags and the immutable Command, plus the Apply helpers
// user code issues instructions with.
package ops
