// Package money encodes monetary amounts as exact JSON numbers.
package money

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits amounts are written with.
const Scale = 2

// Encode writes d as a JSON number with two fractional digits.
func Encode(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(Scale)))
}

// Decode reads an amount written either as a JSON number or a string.
func Decode(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, errors.Errorf("amount: unexpected %s", d.Next())
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse amount %q", raw)
	}
	return v, nil
}
