package domain

import "time"

// Executor is one running flowtrigger process; its name doubles as the claim holder identity.
type Executor struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Started    time.Time `json:"started"`
	LastActive time.Time `json:"lastActive"`
}
