package station

import (
	"errors"
	"time"

	"github.com/zombor/rxscan/internal/barcode"
)

var (
	// ErrNotFound is returned when an identifier or label does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateIdentifier is returned when a minted identifier is already
	// registered. Minting does not retry; callers decide what to do.
	ErrDuplicateIdentifier = errors.New("identifier already registered")
)

// Identifier is a minted identifier held in the registry
type Identifier struct {
	ID        string       `json:"id"`
	Kind      barcode.Kind `json:"kind"`
	Label     string       `json:"label,omitempty"` // stored label file, once rendered
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Scan is a captured token together with its advisory decoding
type Scan struct {
	ID           string                `json:"id"` // ULID, sorts by capture time
	Token        string                `json:"token"`
	Kind         barcode.Kind          `json:"kind"`
	Valid        bool                  `json:"valid"`
	Registered   bool                  `json:"registered"` // token is a minted identifier
	Prescription *barcode.Prescription `json:"prescription,omitempty"`
	Source       string                `json:"source"`
	ScannedAt    time.Time             `json:"scanned_at"`
}
