package db

import (
	"database/sql"

	"github.com/teranos/offramp/errors"
)

// Stats summarizes row counts across the core tables.
type Stats struct {
	LifecycleRecords int
	ExecutionLogs    int
	ActionOutcomes   int
	AdminSessions    int
	AuditEntries     int
}

// CollectStats returns row counts for the core tables.
func CollectStats(db *sql.DB) (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		table string
		dest  *int
	}{
		{"lifecycle_records", &stats.LifecycleRecords},
		{"execution_logs", &stats.ExecutionLogs},
		{"action_outcomes", &stats.ActionOutcomes},
		{"admin_sessions", &stats.AdminSessions},
		{"audit_log", &stats.AuditEntries},
	}

	for _, c := range counts {
		if err := db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dest); err != nil {
			return nil, errors.Wrapf(err, "count %s", c.table)
		}
	}

	return stats, nil
}
