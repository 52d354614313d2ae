// Package stores provides SQLite-backed persistence for run history: run
// records, per-unit results, the full transition trace, and each unit's last
// known output. Schema changes run through embedded migrations.
package stores
