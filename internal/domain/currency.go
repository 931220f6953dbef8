package domain

import "strings"

type Currency string

func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func NormalizeCurrency(s string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(s)))
}

// minorUnits lists ISO 4217 exponents that differ from the default of 2.
var minorUnits = map[Currency]int32{
	"BHD": 3,
	"CLP": 0,
	"IQD": 3,
	"ISK": 0,
	"JOD": 3,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"LYD": 3,
	"OMR": 3,
	"TND": 3,
	"UGX": 0,
	"VND": 0,
}

func (c Currency) MinorUnits() int32 {
	if e, ok := minorUnits[c]; ok {
		return e
	}
	return 2
}
