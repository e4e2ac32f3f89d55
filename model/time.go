package model

import "time"

// Now returns the current UTC time truncated to the microsecond precision Postgres keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
