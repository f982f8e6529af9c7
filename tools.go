//go:build tools

// Package relaychat tracks tool dependencies used by go generate (mockgen) so
// they stay pinned in go.mod.
package relaychat

import (
	_ "go.uber.org/mock/mockgen"
)
