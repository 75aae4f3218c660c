package barcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"
)

// Kind names a family of minted identifiers
type Kind string

const (
	KindBarcode      Kind = "barcode"
	KindTransaction  Kind = "transaction"
	KindPrescription Kind = "prescription"
	KindReturn       Kind = "return"
	KindInvoice      Kind = "invoice"
	KindUnknown      Kind = "unknown"
)

// DefaultPrefix is used by GenerateBarcode when no prefix is given
const DefaultPrefix = "OBT"

// tags maps each dated number kind to its three letter tag
var tags = map[Kind]string{
	KindTransaction:  "TRX",
	KindPrescription: "RSP",
	KindReturn:       "RTN",
	KindInvoice:      "INV",
}

// ErrUnknownKind is returned when asked to generate an unsupported kind
var ErrUnknownKind = errors.New("unknown identifier kind")

// millisRange keeps the last 8 digits of the epoch millis
const millisRange = 100000000

const (
	suffixRange = 10000
	// largest multiple of suffixRange that fits in two bytes
	suffixThreshold = suffixRange * (65536 / suffixRange)
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now()
}

// Formatter mints identifier strings from a time source and a random source.
// Values are not guaranteed unique; callers that need uniqueness must check
// against a store.
type Formatter struct {
	random io.Reader
	clock  TimeSource
}

// NewFormatter creates a Formatter backed by crypto/rand and the wall clock
func NewFormatter() *Formatter {
	return NewFormatterWithDeps(rand.Reader, wallClock{})
}

// NewFormatterWithDeps creates a Formatter with custom dependencies for testing
func NewFormatterWithDeps(random io.Reader, clock TimeSource) *Formatter {
	return &Formatter{random: random, clock: clock}
}

// Generate mints a new identifier of the given kind
func (f *Formatter) Generate(kind Kind) (string, error) {
	switch kind {
	case KindBarcode:
		return f.Barcode("")
	case KindTransaction, KindPrescription, KindReturn, KindInvoice:
		return f.dated(tags[kind])
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Barcode returns <prefix><last 8 digits of epoch millis><4 random digits>.
// An empty prefix means DefaultPrefix.
func (f *Formatter) Barcode(prefix string) (string, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	suffix, err := f.suffix()
	if err != nil {
		return "", err
	}
	millis := f.clock.Now().UnixMilli() % millisRange
	if millis < 0 {
		millis += millisRange
	}
	return fmt.Sprintf("%s%08d%04d", prefix, millis, suffix), nil
}

// dated returns <tag><YYMMDD><4 random digits>
func (f *Formatter) dated(tag string) (string, error) {
	suffix, err := f.suffix()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s%04d", tag, f.clock.Now().Format("060102"), suffix), nil
}

// suffix draws a uniform value in [0, 9999]. Two-byte draws at or above
// suffixThreshold are rejected so every value is equally likely.
func (f *Formatter) suffix() (int, error) {
	var buf [2]byte
	for {
		if _, err := io.ReadFull(f.random, buf[:]); err != nil {
			return 0, fmt.Errorf("reading random bytes: %w", err)
		}
		n := int(buf[0])<<8 | int(buf[1])
		if n < suffixThreshold {
			return n % suffixRange, nil
		}
	}
}

var std = NewFormatter()

func must(s string, err error) string {
	if err != nil {
		panic(err)
	}
	return s
}

// GenerateBarcode mints a product barcode with the given prefix (default "OBT")
func GenerateBarcode(prefix string) string {
	return must(std.Barcode(prefix))
}

// GenerateTransactionNumber mints a TRX number
func GenerateTransactionNumber() string {
	return must(std.Generate(KindTransaction))
}

// GeneratePrescriptionNumber mints an RSP number
func GeneratePrescriptionNumber() string {
	return must(std.Generate(KindPrescription))
}

// GenerateReturnNumber mints an RTN number
func GenerateReturnNumber() string {
	return must(std.Generate(KindReturn))
}

// GenerateInvoiceNumber mints an INV number
func GenerateInvoiceNumber() string {
	return must(std.Generate(KindInvoice))
}
