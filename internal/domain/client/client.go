// Package client holds the loyalty aggregate kept per customer.
package client

import (
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-engine/internal/money"
)

// ErrNotFound is returned when a sale references an unknown client.
var ErrNotFound = errors.New("client not found")

// Client is a customer with cumulative purchase aggregates.
type Client struct {
	ID            string
	Name          string
	TotalSpent    money.Money
	PurchaseCount int
	IsPremium     bool
	PremiumSince  *time.Time
}

// Purchase is a sale attributed to a client.
type Purchase struct {
	Total money.Money
	At    time.Time
}

// Apply returns c with p folded into its aggregates. Any purchase makes the
// client premium, and PremiumSince moves to the time of the latest purchase.
func (c Client) Apply(p Purchase) Client {
	at := p.At
	c.TotalSpent = c.TotalSpent.Add(p.Total)
	c.PurchaseCount++
	c.IsPremium = true
	c.PremiumSince = &at
	return c
}
