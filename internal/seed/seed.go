// Package seed bootstraps the rows a fresh install needs before the
// first billing run.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// EnsureInvoiceCounter seeds the numbering counter for the current year
// so the first generation run starts at sequence one. The insert is
// idempotent; an existing counter is left untouched.
func EnsureInvoiceCounter(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	key := fmt.Sprintf("WM-%04d", time.Now().UTC().Year())
	ctx := context.Background()
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_counters (key, next) VALUES (?, 1)
		 ON CONFLICT (key) DO NOTHING`,
		key,
	).Error
}
