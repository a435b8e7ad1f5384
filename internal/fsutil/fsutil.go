// Package fsutil holds the small filesystem predicates the analysis
// pass needs before it starts walking archives: whether a path exists,
// whether it is a directory, and whether a directory looks like a CVS
// repository at all.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package fsutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

// Exists reports whether pathname names anything at all.
func Exists(pathname string) bool {
	_, err := os.Stat(pathname)
	return !os.IsNotExist(err)
}

// IsDir reports whether pathname exists and is a directory.
func IsDir(pathname string) bool {
	st, err := os.Stat(pathname)
	return err == nil && st.Mode().IsDir()
}

// IsSymlink reports whether pathname exists and is a symbolic link.
func IsSymlink(pathname string) bool {
	st, err := os.Lstat(pathname)
	return err == nil && (st.Mode()&os.ModeSymlink) != 0
}

// IsCVSRepository reports whether dirname looks like a CVS repository:
// either it has a CVSROOT subdirectory, or — since CVSROOT is only
// required at the top of a whole repository, not at every module
// directory below it — it directly contains at least one ",v"
// archive.
func IsCVSRepository(dirname string) bool {
	cvsroot := filepath.Join(dirname, "CVSROOT")
	if Exists(cvsroot) && IsDir(cvsroot) {
		return true
	}
	entries, err := ioutil.ReadDir(dirname)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ",v") {
			return true
		}
	}
	return false
}
