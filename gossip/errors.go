// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import "errors"

// ErrInvariantViolation is returned when a core assertion is broken: the
// fanout iterator yielded the sending node itself. This indicates a bug
// in the core, not a normal protocol outcome, and the driver should
// treat it as fatal for the offending node.
var ErrInvariantViolation = errors.New("gossip: invariant violation")
