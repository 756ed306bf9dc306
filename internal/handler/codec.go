package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/domain/sale"
	"github.com/xenking/pos-engine/internal/money"
)

// requestError is a body that could not be read or decoded.
type requestError struct {
	err error
}

func (e *requestError) Error() string {
	return "invalid request body: " + e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}

func readBody(w http.ResponseWriter, r *http.Request) (*jx.Decoder, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &requestError{err: err}
	}
	return jx.DecodeBytes(b), nil
}

func unknownField(key []byte) error {
	return errors.Errorf("unknown field %q", key)
}

// optionalStr reads a string that may be null.
func optionalStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeCreateRequest decodes
//
//	{"items":[{"productId":"A","quantity":2}],"clientId":"c1","couponCode":"X","paymentType":"PIX"}
//
// Payment type names are case-insensitive.
func decodeCreateRequest(d *jx.Decoder) (sale.CreateRequest, error) {
	var (
		req         sale.CreateRequest
		paymentType string
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeLineItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "clientId":
			req.ClientID, err = optionalStr(d)
		case "couponCode":
			req.CouponCode, err = optionalStr(d)
		case "paymentType":
			paymentType, err = d.Str()
		default:
			return unknownField(key)
		}
		return err
	})
	if err != nil {
		return req, &requestError{err: err}
	}

	// A missing payment type is left for the engine to reject in order.
	if paymentType != "" {
		req.PaymentType, err = sale.ParsePaymentType(paymentType)
	}
	return req, err
}

func decodeLineItem(d *jx.Decoder) (sale.LineItem, error) {
	var item sale.LineItem
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "productId":
			item.ProductID, err = d.Str()
		case "quantity":
			item.Quantity, err = d.Int()
		default:
			return unknownField(key)
		}
		return err
	})
	return item, err
}

// decodeStatusRequest decodes {"status":"COMPLETED"}.
func decodeStatusRequest(d *jx.Decoder) (sale.Status, error) {
	var status string
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "status" {
			return unknownField(key)
		}
		var err error
		status, err = d.Str()
		return err
	})
	if err != nil {
		return "", &requestError{err: err}
	}
	return sale.ParseStatus(status)
}

func encodeMoney(e *jx.Encoder, name string, m money.Money) {
	e.FieldStart(name)
	e.Str(m.String())
}

func encodeOptionalStr(e *jx.Encoder, name, s string) {
	e.FieldStart(name)
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}

func encodeSale(e *jx.Encoder, s *sale.Sale) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	encodeOptionalStr(e, "clientId", s.ClientID)
	encodeOptionalStr(e, "ticketId", s.TicketID)
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range s.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		encodeMoney(e, "price", item.Price)
		e.ObjEnd()
	}
	e.ArrEnd()
	encodeMoney(e, "subtotal", s.Subtotal)
	encodeMoney(e, "totalDiscount", s.TotalDiscount)
	encodeMoney(e, "total", s.Total)
	e.FieldStart("paymentType")
	e.Str(string(s.PaymentType))
	e.FieldStart("status")
	e.Str(string(s.Status))
	e.FieldStart("createdAt")
	e.Str(s.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	encodeMoney(e, "price", p.Price)
	e.FieldStart("stock")
	e.Int(p.Stock)
	if p.Weight != nil {
		e.FieldStart("weight")
		e.Str(p.Weight.String())
	}
	if p.Measure != "" {
		e.FieldStart("measure")
		e.Str(p.Measure)
	}
	e.ObjEnd()
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
