// Package revnum implements the revision-number calculus: pure,
// total functions over CVS/RCS dotted revision-number strings such as
// "1.3" or "1.3.2.1". Inputs are assumed well-formed; malformed input
// is a programmer error and is not defended against here.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package revnum

import "strings"

func split(r string) []string {
	return strings.Split(r, ".")
}

// IsTrunk reports whether r is a trunk revision (exactly two components).
func IsTrunk(r string) bool {
	return len(split(r)) == 2
}

// IsBranchNumber reports whether r identifies a branch itself
// (odd-length, at least three components).
func IsBranchNumber(r string) bool {
	parts := split(r)
	return len(parts) >= 3 && len(parts)%2 == 1
}

// IsBranchRevision reports whether r identifies a commit on a branch
// (even-length, at least four components).
func IsBranchRevision(r string) bool {
	parts := split(r)
	return len(parts) >= 4 && len(parts)%2 == 0
}

// IsVendorBranchRevision reports whether r matches the 1.1.1.N pattern.
func IsVendorBranchRevision(r string) bool {
	parts := split(r)
	return len(parts) == 4 && parts[0] == "1" && parts[1] == "1" && parts[2] == "1"
}

// SameLineOfDevelopment reports whether a and b are on the same line
// of development: either one empty is false, both trunk is true,
// or they share a prefix through all but the last component.
func SameLineOfDevelopment(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if IsTrunk(a) && IsTrunk(b) {
		return true
	}
	pa, pb := split(a), split(b)
	if len(pa) != len(pb) || len(pa) < 2 {
		return false
	}
	for i := 0; i < len(pa)-1; i++ {
		if pa[i] != pb[i] {
			return false
		}
	}
	return true
}

// BranchNumberOf returns the branch number a branch revision lives on:
// the revision's dotted number with its last component removed.
func BranchNumberOf(r string) string {
	parts := split(r)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], ".")
}

// ParentOfBranchNumber returns the revision a branch number sprouts
// from: the branch number with its last component removed.
func ParentOfBranchNumber(b string) string {
	parts := split(b)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], ".")
}

// NormalizeBranchNumber rewrites an archive-format branch number of
// the form P.0.N to P.N; anything else is returned unchanged. This
// undoes RCS's habit of writing an interposed zero segment
// (e.g. "1.3.0.2" means the same branch as "1.3.2").
func NormalizeBranchNumber(s string) string {
	parts := split(s)
	if len(parts) >= 3 && parts[len(parts)-2] == "0" {
		out := make([]string, 0, len(parts)-1)
		out = append(out, parts[:len(parts)-2]...)
		out = append(out, parts[len(parts)-1])
		return strings.Join(out, ".")
	}
	return s
}
