// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package analyzer

import "fmt"

// StructuralError is a recoverable per-file condition: a revision
// graph contradiction the callback stream should never produce from a
// well-formed archive (an unresolved next pointer, a parent or child
// slot claimed twice, a branch whose first commit already has a
// different parent). It is raised by panic so that a single
// contradiction abandons the rest of the file's analysis rather than
// emitting revisions built on a graph known to be wrong; the global
// collector recovers it at the file boundary and records it as a
// fatal error without aborting the batch.
type StructuralError struct {
	Path    string
	Message string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}
