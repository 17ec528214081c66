// Package numbering mints waste-management invoice numbers from a
// dedicated per-year counter row. Sequences are unique and
// monotonically increasing; a reservation made inside a transaction is
// released with it on rollback, so a failed invoice insert never burns
// or duplicates a number.
package numbering

import (
	"context"
	"fmt"

	"github.com/baladiya/wastebilling/internal/fault"
	"github.com/baladiya/wastebilling/pkg/db"
	"gorm.io/gorm"
)

// Prefix tags the waste-management numbering domain. One strategy per
// prefix: this counter owns every WM- number.
const Prefix = "WM"

const maxAttempts = 5

// Format renders the external invoice number form, e.g. WM-2025-000042.
// It must round-trip exactly; reports and the UI parse it.
func Format(year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%06d", Prefix, year, seq)
}

func counterKey(year int) string {
	return fmt.Sprintf("%s-%04d", Prefix, year)
}

// Next reserves the next sequence for the year inside the caller's
// transaction and returns the formatted invoice number. The first call
// for a new year seeds the counter; later calls read-increment-write
// with an optimistic guard so two writers can never take the same
// sequence. If the counter update fails, the whole call fails.
func Next(ctx context.Context, tx *gorm.DB, year int) (string, error) {
	key := counterKey(year)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var next int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT next FROM invoice_counters WHERE key = ?`+db.ForUpdate(tx),
			key,
		).Scan(&next).Error; err != nil {
			return "", fault.Persistence("read invoice counter", err)
		}

		if next == 0 {
			result := tx.WithContext(ctx).Exec(
				`INSERT INTO invoice_counters (key, next) VALUES (?, 2)
				 ON CONFLICT (key) DO NOTHING`,
				key,
			)
			if result.Error != nil {
				return "", fault.Persistence("seed invoice counter", result.Error)
			}
			if result.RowsAffected == 1 {
				return Format(year, 1), nil
			}
			// Another writer seeded the row first; retry the read.
			continue
		}

		result := tx.WithContext(ctx).Exec(
			`UPDATE invoice_counters SET next = ? WHERE key = ? AND next = ?`,
			next+1,
			key,
			next,
		)
		if result.Error != nil {
			return "", fault.Persistence("advance invoice counter", result.Error)
		}
		if result.RowsAffected == 1 {
			return Format(year, next), nil
		}
		// Lost the optimistic race; retry.
	}

	return "", fault.Persistence("advance invoice counter", fmt.Errorf("contention on counter %s", key))
}
