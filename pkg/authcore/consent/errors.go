// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package consent

import "errors"

var (
	// ErrNotFound is returned when no live decision exists for an interaction.
	// Never recorded, already consumed and expired are deliberately
	// indistinguishable.
	ErrNotFound = errors.New("consent decision not found")

	// ErrRecordFailed is returned when a decision cannot be persisted.
	ErrRecordFailed = errors.New("failed to record consent decision")

	// ErrInvalidDecision is returned for decisions missing an interaction id.
	ErrInvalidDecision = errors.New("invalid consent decision")
)
