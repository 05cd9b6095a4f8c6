/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/squarewave/internal/telemetry"
)

const startTimeKey = "squarewave:start_time"

// PlaybackTables are the tables metrics are labelled with. Anything else is
// reported as "other".
var PlaybackTables = []string{"tracks", "now_playing_entries", "preferences"}

// RegisterCallbacks times every query, create, update and delete. Lookups
// that find no row, such as an unset preference or a forgotten last track,
// count as misses instead of errors.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Query().Before("gorm:query").Register("telemetry:before_query", startTimer),
		cb.Query().After("gorm:query").Register("telemetry:after_query", observe("query")),
		cb.Create().Before("gorm:create").Register("telemetry:before_create", startTimer),
		cb.Create().After("gorm:create").Register("telemetry:after_create", observe("create")),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", startTimer),
		cb.Update().After("gorm:update").Register("telemetry:after_update", observe("update")),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", startTimer),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", observe("delete")),
	)
}

func startTimer(tx *gorm.DB) {
	tx.InstanceSet(startTimeKey, time.Now())
}

func observe(operation string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(startTimeKey)
		if !ok {
			return
		}
		began, ok := v.(time.Time)
		if !ok {
			return
		}

		table := tableLabel(tx.Statement.Table)
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(began).Seconds())

		switch {
		case tx.Error == nil:
		case errors.Is(tx.Error, gorm.ErrRecordNotFound):
			telemetry.DatabaseLookupMissesTotal.WithLabelValues(table).Inc()
		default:
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, table).Inc()
		}
	}
}

func tableLabel(table string) string {
	if slices.Contains(PlaybackTables, table) {
		return table
	}
	return "other"
}

// UpdateConnectionMetrics samples the connection pool.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
