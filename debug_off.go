//go:build !uvdebug

package uvloop

const debugChecks = false
