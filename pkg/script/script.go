// Package script classifies characters by writing system and splits text
// into maximal runs that are uniformly in or out of a target script.
package script

import (
	"errors"
	"fmt"
	"unicode"
)

// Variant identifies one supported language variant.
type Variant string

const (
	None   Variant = ""
	Korean Variant = "kr"
	// Mandarin is simplified Chinese read with pinyin.
	Mandarin Variant = "zh_CN"
	// Cantonese is Chinese read with jyutping.
	Cantonese Variant = "zh_HK"
)

// ErrUnsupportedVariant is returned when a variant has no classifier or segmenter.
var ErrUnsupportedVariant = errors.New("unsupported language variant")

// Variants lists every supported variant in a stable order.
func Variants() []Variant {
	return []Variant{Korean, Mandarin, Cantonese}
}

// ParseVariant maps a string such as "zh_CN" to a Variant.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants() {
		if string(v) == s {
			return v, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnsupportedVariant, s)
}

func (v Variant) String() string {
	if v == None {
		return "none"
	}
	return string(v)
}

// Classifier reports whether a character belongs to a target script.
type Classifier func(r rune) bool

var hangul = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x1100, Hi: 0x11ff, Stride: 1}, // jamo
		{Lo: 0x3130, Hi: 0x318f, Stride: 1}, // compatibility jamo
		{Lo: 0xa960, Hi: 0xa97f, Stride: 1}, // jamo extended-A
		{Lo: 0xac00, Hi: 0xd7af, Stride: 1}, // syllables
		{Lo: 0xd7b0, Hi: 0xd7ff, Stride: 1}, // jamo extended-B
	},
}

var han = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3400, Hi: 0x4db5, Stride: 1},
		{Lo: 0x4e00, Hi: 0x9fcc, Stride: 1},
		{Lo: 0xfa0e, Hi: 0xfa0f, Stride: 1},
		{Lo: 0xfa11, Hi: 0xfa13, Stride: 2},
		{Lo: 0xfa14, Hi: 0xfa14, Stride: 1},
		{Lo: 0xfa1f, Hi: 0xfa21, Stride: 2},
		{Lo: 0xfa23, Hi: 0xfa24, Stride: 1},
		{Lo: 0xfa27, Hi: 0xfa29, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x20000, Hi: 0x2a6d6, Stride: 1}, // extension B
		{Lo: 0x2a700, Hi: 0x2b734, Stride: 1}, // extension C
		{Lo: 0x2b740, Hi: 0x2b81d, Stride: 1}, // extension D
	},
}

// IsHangul reports whether r is a Korean Hangul syllable or jamo.
func IsHangul(r rune) bool {
	return unicode.Is(hangul, r)
}

// IsHan reports whether r is a CJK unified ideograph, including the
// supplementary-plane extensions B through D.
func IsHan(r rune) bool {
	return unicode.Is(han, r)
}

// ClassifierFor returns the target-script predicate of a variant.
func ClassifierFor(v Variant) (Classifier, error) {
	switch v {
	case Korean:
		return IsHangul, nil
	case Mandarin, Cantonese:
		return IsHan, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVariant, string(v))
	}
}
