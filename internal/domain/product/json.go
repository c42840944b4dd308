package product

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-service/internal/cache"
	"github.com/xenking/order-service/internal/domain/money"
)

// Codec is the JSON form of Product used by the read cache and the API.
var Codec = cache.Codec[Product]{
	Encode: func(e *jx.Encoder, p Product) { p.Encode(e) },
	Decode: func(d *jx.Decoder) (Product, error) {
		var p Product
		err := p.Decode(d)
		return p, err
	},
}

// Encode writes p as a JSON object.
func (p Product) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("productId")
	e.Str(p.ProductID)
	e.FieldStart("productName")
	e.Str(p.Name)
	e.FieldStart("quantity")
	e.Int(p.Quantity)
	e.FieldStart("unitPrice")
	money.Encode(e, p.UnitPrice)
	e.ObjEnd()
}

// Decode reads p from a JSON object. Unknown fields are skipped.
func (p *Product) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Int64()
		case "productId":
			p.ProductID, err = d.Str()
		case "productName":
			p.Name, err = d.Str()
		case "quantity":
			p.Quantity, err = d.Int()
		case "unitPrice":
			p.UnitPrice, err = money.Decode(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode product field %q", key)
		}
		return nil
	})
}

// DecodeList reads a JSON array of products.
func DecodeList(data []byte) ([]Product, error) {
	var products []Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p Product
		if err := p.Decode(d); err != nil {
			return err
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode product list")
	}
	return products, nil
}
