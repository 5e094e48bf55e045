// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// maxTokenBytes bounds the locked buffer backing a credential.
	// InfluxDB API tokens are under 100 bytes; 4 KB leaves generous room.
	maxTokenBytes = 4 * 1024

	// minMlockLimitKB is the smallest mlock limit (in kilobytes) that
	// fits the token buffer plus memguard's guard allocations.
	minMlockLimitKB = 64
)

// =============================================================================
// Package Variables
// =============================================================================

var (
	// secureInitOnce ensures memguard initialization happens only once.
	secureInitOnce sync.Once

	// mlockSufficient is set during initialization to indicate if secure
	// memory is available.
	mlockSufficient bool

	// currentMlockLimitKB stores the current mlock limit for logging.
	currentMlockLimitKB int64
)

// =============================================================================
// SecureToken
// =============================================================================

// SecureToken holds an export credential in mlocked memory.
//
// # Description
//
// The token bytes live in a memguard LockedBuffer: locked against
// swapping to disk, fenced by guard pages, and explicitly wiped on
// Destroy. On systems whose mlock limit is too low the token falls back
// to ordinary memory when RANKFORGE_INSECURE_MEMORY=true is set;
// otherwise construction fails with configuration guidance.
//
// # Thread Safety
//
// Safe for concurrent use.
//
// # Limitations
//
//   - Reveal copies the token into an ordinary Go string for the client
//     that needs it per request; that copy's lifetime is the client's,
//     not the buffer's.
//   - The token cannot be revealed after Destroy.
type SecureToken struct {
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	fallback  []byte
	destroyed bool
}

// NewSecureToken stores token in locked memory.
//
// # Description
//
// Allocates an mlocked buffer sized to the token and copies the token
// into it. If the mlock limit is insufficient and
// RANKFORGE_INSECURE_MEMORY is not set, returns an error. With
// RANKFORGE_INSECURE_MEMORY=true, falls back to ordinary memory with a
// warning.
//
// # Inputs
//
//   - token: Credential to protect (non-empty, at most maxTokenBytes)
//
// # Outputs
//
//   - *SecureToken: Ready for use
//   - error: Non-nil if the token is empty, oversized, or secure memory
//     is unavailable with no fallback permitted
//
// # Examples
//
//	tok, err := export.NewSecureToken(os.Getenv("INFLUXDB_TOKEN"))
//	if err != nil {
//	    return err
//	}
//	defer tok.Destroy()
func NewSecureToken(token string) (*SecureToken, error) {
	if token == "" {
		return nil, fmt.Errorf("token must not be empty")
	}
	if len(token) > maxTokenBytes {
		return nil, fmt.Errorf("token exceeds %d bytes", maxTokenBytes)
	}

	initSecureMemory()

	if !mlockSufficient {
		return newFallbackToken(token)
	}

	buf := memguard.NewBuffer(len(token))
	if buf == nil {
		return nil, fmt.Errorf("failed to allocate secure buffer of %d bytes", len(token))
	}
	buf.Melt()
	copy(buf.Bytes(), token)
	buf.Freeze()

	return &SecureToken{buffer: buf}, nil
}

// newFallbackToken creates a token in ordinary memory when mlock is unavailable.
func newFallbackToken(token string) (*SecureToken, error) {
	if os.Getenv("RANKFORGE_INSECURE_MEMORY") != "true" {
		return nil, fmt.Errorf(
			"mlock limit insufficient: have %d KB, need %d KB. "+
				"Raise the limit or set RANKFORGE_INSECURE_MEMORY=true",
			currentMlockLimitKB, minMlockLimitKB,
		)
	}

	slog.Warn("SECURITY: holding export token in insecure memory - mlock limit insufficient",
		"current_limit_kb", currentMlockLimitKB,
		"required_kb", minMlockLimitKB,
		"env_override", "RANKFORGE_INSECURE_MEMORY=true",
	)
	return &SecureToken{fallback: []byte(token)}, nil
}

// Reveal returns a copy of the token for client construction.
//
// # Description
//
// Copies the token out of protected memory. Callers should hand the copy
// to exactly one client and call Destroy as soon as construction is done.
//
// # Outputs
//
//   - string: The credential
//   - error: Non-nil if the token has been destroyed
func (t *SecureToken) Reveal() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return "", fmt.Errorf("token already destroyed")
	}
	if t.buffer != nil {
		return string(t.buffer.Bytes()), nil
	}
	return string(t.fallback), nil
}

// Destroy wipes the token. Safe to call multiple times (idempotent).
func (t *SecureToken) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return
	}
	if t.buffer != nil {
		t.buffer.Destroy()
		t.buffer = nil
	}
	for i := range t.fallback {
		t.fallback[i] = 0
	}
	t.fallback = nil
	t.destroyed = true
}

// =============================================================================
// Package Initialization Functions
// =============================================================================

// initSecureMemory initializes memguard and checks the mlock limit once.
func initSecureMemory() {
	secureInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		logMlockStatus()
	})
}

// checkMlockLimit queries the kernel for the mlock resource limit.
// Returns whether the limit fits the token buffer and the limit in KB
// (-1 if unlimited). An unreadable limit is treated as sufficient.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockLimitKB, limitKB
}

// logMlockStatus logs the secure memory status determined at init.
func logMlockStatus() {
	if mlockSufficient {
		slog.Debug("Secure memory initialized",
			"mlock_limit_kb", currentMlockLimitKB,
			"required_kb", minMlockLimitKB,
		)
		return
	}
	slog.Warn("mlock limit insufficient for secure token storage",
		"current_limit_kb", currentMlockLimitKB,
		"required_kb", minMlockLimitKB,
		"help", "raise RLIMIT_MEMLOCK or set RANKFORGE_INSECURE_MEMORY=true",
	)
}

// =============================================================================
// Utility Functions
// =============================================================================

// IsMlockAvailable returns whether secure memory is available on this
// system and the current mlock limit in KB (-1 if unlimited).
func IsMlockAvailable() (bool, int64) {
	initSecureMemory()
	return mlockSufficient, currentMlockLimitKB
}

// PurgeSecureMemory wipes all memguard-allocated memory. Call during
// graceful shutdown; existing tokens are invalid afterwards.
func PurgeSecureMemory() {
	memguard.Purge()
}
