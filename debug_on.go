//go:build uvdebug

package uvloop

// debugChecks turns context and request misuse into panics.
const debugChecks = true
