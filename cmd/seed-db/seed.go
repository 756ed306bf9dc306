package main

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-engine/internal/domain/client"
	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/money"
)

// seedFile is the content of a seed file:
//
//	{
//	  "products": [{"id":"A","name":"Apple","price":"10.00","cost":"6.00","stock":5,"weight":"0.2","measure":"kg"}],
//	  "clients":  [{"id":"c1","name":"Ana"}],
//	  "tickets":  [{"code":"TEN","discountPercent":"10","usageLimit":100,"validFrom":"2025-01-01T00:00:00Z","isActive":true}]
//	}
//
// Decimal values may be JSON strings or numbers.
type seedFile struct {
	Products []product.Product
	Clients  []client.Client
	Tickets  []coupon.Ticket
}

func decodeSeed(data []byte) (*seedFile, error) {
	var s seedFile
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return errors.Wrapf(err, "product %d", len(s.Products))
				}
				s.Products = append(s.Products, p)
				return nil
			})
		case "clients":
			return d.Arr(func(d *jx.Decoder) error {
				c, err := decodeClient(d)
				if err != nil {
					return errors.Wrapf(err, "client %d", len(s.Clients))
				}
				s.Clients = append(s.Clients, c)
				return nil
			})
		case "tickets":
			return d.Arr(func(d *jx.Decoder) error {
				t, err := decodeTicket(d)
				if err != nil {
					return errors.Wrapf(err, "ticket %d", len(s.Tickets))
				}
				s.Tickets = append(s.Tickets, t)
				return nil
			})
		default:
			return errors.Errorf("unknown section %q", key)
		}
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// decimalValue reads a decimal written as a string or a number.
func decimalValue(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	}
	return decimal.NewFromString(raw)
}

func moneyValue(d *jx.Decoder) (money.Money, error) {
	v, err := decimalValue(d)
	if err != nil {
		return money.Zero, err
	}
	return money.New(v)
}

func timeValue(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "price":
			p.Price, err = moneyValue(d)
		case "cost":
			p.Cost, err = moneyValue(d)
		case "stock":
			p.Stock, err = d.Int()
		case "weight":
			var w decimal.Decimal
			if w, err = decimalValue(d); err == nil {
				p.Weight = &w
			}
		case "measure":
			p.Measure, err = d.Str()
		default:
			return errors.Errorf("unknown field %q", key)
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err == nil && p.ID == "" {
		err = errors.New("id is required")
	}
	return p, err
}

func decodeClient(d *jx.Decoder) (client.Client, error) {
	var c client.Client
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			c.ID, err = d.Str()
		case "name":
			c.Name, err = d.Str()
		default:
			return errors.Errorf("unknown field %q", key)
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err == nil && c.ID == "" {
		err = errors.New("id is required")
	}
	return c, err
}

func decodeTicket(d *jx.Decoder) (coupon.Ticket, error) {
	t := coupon.Ticket{IsActive: true}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			t.ID, err = d.Str()
		case "code":
			t.Code, err = d.Str()
		case "discountPercent":
			t.DiscountPercent, err = decimalValue(d)
		case "usageLimit":
			t.UsageLimit, err = d.Int()
		case "validFrom":
			t.ValidFrom, err = timeValue(d)
		case "validUntil":
			t.ValidUntil, err = timeValue(d)
		case "isActive":
			t.IsActive, err = d.Bool()
		default:
			return errors.Errorf("unknown field %q", key)
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return t, err
	}

	t.Code = coupon.NormalizeCode(t.Code)
	switch {
	case t.Code == "":
		return t, errors.New("code is required")
	case t.DiscountPercent.IsNegative() || t.DiscountPercent.GreaterThan(decimal.NewFromInt(100)):
		return t, errors.Errorf("discount percent %s out of range", t.DiscountPercent)
	case t.UsageLimit < 0:
		return t, errors.Errorf("usage limit %d is negative", t.UsageLimit)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return t, nil
}
