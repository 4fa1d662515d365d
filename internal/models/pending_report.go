package models

import "time"

// PendingReport is usage drained from the ledger and handed to the billing provider but
// not yet acknowledged. It is written before the provider call and removed after it, so
// a report that failed ambiguously is retried with the same ID instead of restored and
// reported again.
type PendingReport struct {
	ID            string    `json:"id"`
	CustomerCode  string    `json:"customer_code"`
	ThousandChars float64   `json:"thousand_chars"`
	UsedBefore    float64   `json:"used_before"`
	Characters    uint64    `json:"characters"`
	Requests      uint64    `json:"requests"`
	CreatedAt     time.Time `json:"created_at"`
	Attempts      int       `json:"attempts"`
}
