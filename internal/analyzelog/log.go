// Package analyzelog is the logging idiom shared across the analysis
// pass, modeled on reposurgeon's logit/croak/logEnable scheme but built
// on logrus structured fields instead of a hand-rolled bitmask, so a
// channel can be grepped out of a run as "component=resync" instead of
// requiring the bit to be compiled in.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package analyzelog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Component names the part of the analysis pass emitting a message,
// standing in for the teacher's logTAGFIX/logDELETE/... bitmask.
type Component string

const (
	ComponentResync    Component = "resync"
	ComponentSymbols   Component = "symbols"
	ComponentBranch    Component = "branch"
	ComponentCollector Component = "collector"
	ComponentCommit    Component = "commit"
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel adjusts the minimum severity emitted; mirrors the teacher's
// control.logmask except there is only one knob, not a per-channel bit.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// For returns a logger pre-tagged with the given component.
func For(c Component) *logrus.Entry {
	return base.WithField("component", string(c))
}

// Warn logs a warning against a component, matching the spec's policy
// that timestamp anomalies, name collisions, and encoding failures are
// reported but never abort the batch.
func Warn(c Component, format string, args ...interface{}) {
	For(c).Warnf(format, args...)
}

// Fatal logs a structural error. Unlike the teacher's croak (which sets
// an abort flag examined by the command loop), structural errors here
// are appended to the global collector's fatal-error list by the caller;
// this only renders the message.
func Fatal(c Component, format string, args ...interface{}) {
	For(c).Errorf(format, args...)
}
