package main

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/voucher"
)

const (
	minCodeLen = 4
	maxCodeLen = 32
)

// parseLine reads one campaign line: code,kind,value[,max_discount]. Blank
// lines and lines starting with '#' yield ok=false.
func parseLine(line, distributorID string) (v voucher.Voucher, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return v, false, nil
	}

	fields := strings.Split(line, ",")
	if len(fields) < 3 || len(fields) > 4 {
		return v, false, errors.Errorf("want 3 or 4 fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	code := strings.ToUpper(fields[0])
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return v, false, errors.Errorf("code %q: length must be between %d and %d", code, minCodeLen, maxCodeLen)
	}

	kind := voucher.Kind(fields[1])
	switch kind {
	case voucher.KindPercentage, voucher.KindFlat, voucher.KindFreeLowest:
	default:
		return v, false, errors.Errorf("code %q: unknown kind %q", code, fields[1])
	}

	value, err := decimal.NewFromString(fields[2])
	if err != nil {
		return v, false, errors.Wrapf(err, "code %q: parse value", code)
	}
	if value.IsNegative() || (kind == voucher.KindPercentage && value.GreaterThan(decimal.NewFromInt(100))) {
		return v, false, errors.Errorf("code %q: value %s out of range", code, value)
	}

	maxDiscount := decimal.Zero
	if len(fields) == 4 && fields[3] != "" {
		if maxDiscount, err = decimal.NewFromString(fields[3]); err != nil {
			return v, false, errors.Wrapf(err, "code %q: parse max discount", code)
		}
	}

	return voucher.Voucher{
		Code:          code,
		DistributorID: distributorID,
		Kind:          kind,
		Value:         value,
		MaxDiscount:   maxDiscount,
		Description:   describe(kind, value),
	}, true, nil
}

func describe(kind voucher.Kind, value decimal.Decimal) string {
	switch kind {
	case voucher.KindPercentage:
		return value.String() + "% off your order"
	case voucher.KindFlat:
		return value.StringFixed(2) + " off your order"
	default:
		return "Lowest priced item free"
	}
}
