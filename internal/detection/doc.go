// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

/*
Package detection finds patterns that only appear when events from different
producers are read together.

The Engine runs once per newly ingested event over a snapshot of every
producer's window. Four detectors are registered by default:

  - CORRELATION: Pearson correlation between the numeric metrics of the new
    event and each overlapping event from another producer. Emitted when
    |r| exceeds the threshold; significance is |r|.
  - TREND: an entity mentioned by at least two distinct producers.
    Significance is min(1, producers*0.3).
  - ANOMALY: a metric above its fixed threshold (significance min(1, |v|/t)),
    an overlong text field (0.7), or a run of five or more capitals (0.6).
  - SEQUENCE: two related events from different producers less than the
    sequence gap apart. Significance is max(0.5, 1 - gap_hours/24).

Detectors are pure: given the same event and snapshot they return the same
patterns, apart from DetectedAt. The significance functions are exported so
that a pattern can be checked against its source events.

A detector that fails or panics is isolated. Its error is logged and counted
and the other detectors' patterns are still returned.

Patterns with significance at or below the configured floor are dropped. The
rest are sorted by significance, persisted, and broadcast once per pattern id.
*/
package detection
