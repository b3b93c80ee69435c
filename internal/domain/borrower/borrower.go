package borrower

import "time"

// Borrower is the read-only identity the engine consults before opening a
// loan. Identity management itself lives elsewhere; the engine only needs a
// display name and an active flag.
type Borrower struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
}
