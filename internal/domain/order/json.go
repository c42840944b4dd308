package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-service/internal/cache"
	"github.com/xenking/order-service/internal/domain/money"
)

// Codec is the JSON form of Order used by the read cache and the API.
var Codec = cache.Codec[Order]{
	Encode: func(e *jx.Encoder, o Order) { o.Encode(e) },
	Decode: func(d *jx.Decoder) (Order, error) {
		var o Order
		err := o.Decode(d)
		return o, err
	},
}

// Encode writes o as a JSON object.
func (o Order) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("externalId")
	e.Str(o.ExternalID)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("totalAmount")
	money.Encode(e, o.TotalAmount)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		it.Encode(e)
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

// Decode reads o from a JSON object. Unknown fields are skipped.
func (o *Order) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Int64()
		case "externalId":
			o.ExternalID, err = d.Str()
		case "customerId":
			o.CustomerID, err = d.Str()
		case "status":
			var s string
			if s, err = d.Str(); err == nil {
				o.Status, err = ParseStatus(s)
			}
		case "totalAmount":
			o.TotalAmount, err = money.Decode(d)
		case "items":
			o.Items = o.Items[:0]
			err = d.Arr(func(d *jx.Decoder) error {
				var it LineItem
				if err := it.Decode(d); err != nil {
					return err
				}
				o.Items = append(o.Items, it)
				return nil
			})
		case "createdAt":
			o.CreatedAt, err = decodeTime(d)
		case "updatedAt":
			o.UpdatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode order field %q", key)
		}
		return nil
	})
}

// Encode writes it as a JSON object.
func (it LineItem) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(it.ProductID)
	e.FieldStart("productName")
	e.Str(it.ProductName)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("unitPrice")
	money.Encode(e, it.UnitPrice)
	e.FieldStart("totalPrice")
	money.Encode(e, it.TotalPrice)
	e.ObjEnd()
}

// Decode reads it from a JSON object.
func (it *LineItem) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			it.ProductID, err = d.Str()
		case "productName":
			it.ProductName, err = d.Str()
		case "quantity":
			it.Quantity, err = d.Int()
		case "unitPrice":
			it.UnitPrice, err = money.Decode(d)
		case "totalPrice":
			it.TotalPrice, err = money.Decode(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode item field %q", key)
		}
		return nil
	})
}

// Encode writes the notification payload.
func (s Summary) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Int64(s.OrderID)
	e.FieldStart("externalId")
	e.Str(s.ExternalID)
	e.FieldStart("customerId")
	e.Str(s.CustomerID)
	e.FieldStart("totalAmount")
	money.Encode(e, s.TotalAmount)
	e.FieldStart("status")
	e.Str(string(s.Status))
	e.FieldStart("updatedAt")
	encodeTime(e, s.UpdatedAt)
	e.ObjEnd()
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
