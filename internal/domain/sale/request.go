package sale

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

// MaxQuantity bounds the quantity of one product in a sale, per line and
// after merging. It matches the INTEGER columns that store quantities.
const MaxQuantity = math.MaxInt32

// LineItem is a requested product and quantity.
type LineItem struct {
	ProductID string
	Quantity  int
}

// CreateRequest holds the input of Service.Create. ClientID and CouponCode
// are optional.
type CreateRequest struct {
	Items       []LineItem
	ClientID    string
	CouponCode  string
	PaymentType PaymentType
}

// Normalize validates r and returns its items with duplicate products merged,
// sorted by ascending product id.
func (r CreateRequest) Normalize() ([]LineItem, error) {
	if len(r.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if !r.PaymentType.Valid() {
		return nil, ErrInvalidPaymentType
	}

	merged := make(map[string]int, len(r.Items))
	for _, item := range r.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, ErrEmptyProductID
		}
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			return nil, &InvalidQuantityError{ProductID: id, Quantity: item.Quantity}
		}
		if merged[id] > MaxQuantity-item.Quantity {
			return nil, &InvalidQuantityError{ProductID: id, Quantity: merged[id] + item.Quantity}
		}
		merged[id] += item.Quantity
	}

	items := make([]LineItem, 0, len(merged))
	for id, qty := range merged {
		items = append(items, LineItem{ProductID: id, Quantity: qty})
	}
	slices.SortFunc(items, func(a, b LineItem) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return items, nil
}
