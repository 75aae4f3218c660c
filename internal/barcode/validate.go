package barcode

import "regexp"

var genericBarcodePattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{12}$`)

// IsValidGenericBarcode reports whether s is exactly three uppercase ASCII
// letters followed by exactly twelve ASCII digits
func IsValidGenericBarcode(s string) bool {
	return genericBarcodePattern.MatchString(s)
}

// IsValidTaggedNumber reports whether s is tag followed by exactly ten ASCII
// digits (YYMMDD plus a four digit suffix)
func IsValidTaggedNumber(tag, s string) bool {
	if len(s) != len(tag)+10 || s[:len(tag)] != tag {
		return false
	}
	for i := len(tag); i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// KindOf classifies s by shape. Dated numbers are checked before the
// generic barcode shape since they are more specific.
func KindOf(s string) Kind {
	for _, kind := range []Kind{KindTransaction, KindPrescription, KindReturn, KindInvoice} {
		if IsValidTaggedNumber(tags[kind], s) {
			return kind
		}
	}
	if IsValidGenericBarcode(s) {
		return KindBarcode
	}
	return KindUnknown
}
