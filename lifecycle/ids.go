package lifecycle

import (
	"strings"

	"github.com/google/uuid"
)

// ID prefixes make record and log identifiers recognizable in logs and the
// audit trail.
const (
	recordIDPrefix = "REC_"
	logIDPrefix    = "EXL_"
)

// NewRecordID generates a lifecycle record identifier.
func NewRecordID() string {
	return recordIDPrefix + compactUUID()
}

// NewLogID generates an execution log identifier.
func NewLogID() string {
	return logIDPrefix + compactUUID()
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
