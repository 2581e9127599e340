// Package signature derives stable error signatures for knowledge base
// lookups. A signature is an opaque token: two incidents share one iff
// their (kind, message, first stack frame) triples are byte-identical.
package signature

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/mendhq/mend/internal/types"
)

// Compute returns the error signature for an incident: the MD5 hex digest
// of kind + ":" + message + ":" + first stack frame. No lowercasing and no
// whitespace stripping is applied; the inputs are hashed exactly as stored
// so that the token stays stable across releases.
func Compute(kind types.IncidentKind, message, stackTrace string) string {
	payload := string(kind) + ":" + message + ":" + FirstFrame(stackTrace)
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ForIncident computes the signature from an incident's own fields. The
// description carries the error message for detector-filed incidents.
func ForIncident(inc *types.Incident) string {
	return Compute(inc.Kind, inc.Description, inc.StackTrace)
}

// FirstFrame returns the first line of a stack trace, or "" when there is
// no stack. The line is not trimmed.
func FirstFrame(stackTrace string) string {
	if stackTrace == "" {
		return ""
	}
	if idx := strings.IndexByte(stackTrace, '\n'); idx >= 0 {
		return stackTrace[:idx]
	}
	return stackTrace
}
