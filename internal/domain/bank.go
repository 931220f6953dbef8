package domain

import "time"

// Bank is a peer bank routing record mirrored from the registry authority.
type Bank struct {
	Prefix      string
	Name        string
	TransferURL string
	KeySetURL   string
	RefreshedAt time.Time
}
