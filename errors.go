package scholarindex

import "errors"

// ═══════════════════════════════════════════════════════════════════════════════
// ERROR TAXONOMY
// ═══════════════════════════════════════════════════════════════════════════════
// Sentinel errors so callers can compare with errors.Is rather than match on
// message text.
//
// - Input-missing / Input-empty: fatal, a phase refuses to start or produces
//   nothing.
// - Format-violation: a truncated or inconsistent binary record. Fatal,
//   aborts the build, never touches a prior successful output.
// - I/O failures bubble up wrapped with fmt.Errorf("...: %w", err) rather
//   than getting their own sentinel, since the underlying os/io error is
//   already informative.
// ═══════════════════════════════════════════════════════════════════════════════
var (
	ErrInputMissing    = errors.New("scholarindex: required input path does not exist")
	ErrInputEmpty      = errors.New("scholarindex: no documents yielded any tokens")
	ErrFormatViolation = errors.New("scholarindex: malformed or truncated binary record")
)
