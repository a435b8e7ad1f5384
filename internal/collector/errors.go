// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package collector

// ProgrammerError marks a broken internal invariant: something the
// analysis pass assumed could never happen. No code in this module
// raises it; a panic carrying it is not an *analyzer.StructuralError,
// so ProcessFile lets it propagate.
type ProgrammerError struct {
	Message string
}

func (e *ProgrammerError) Error() string {
	return e.Message
}
