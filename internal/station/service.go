package station

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zombor/rxscan/internal/barcode"
	"github.com/zombor/rxscan/internal/scanning"
)

// Minter mints new identifiers of a given kind
type Minter interface {
	Generate(kind barcode.Kind) (string, error)
}

// IDGenerator generates IDs for scan log entries
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// ulidGenerator generates monotonic ULIDs so scan keys sort by capture time
type ulidGenerator struct{}

func (g *ulidGenerator) Generate() string {
	return ulid.Make().String()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service composes the identifier engine with the registry, the scan log and
// label storage
type Service struct {
	db          DB
	storage     Storage
	minter      Minter
	idGenerator IDGenerator
	timeSource  TimeSource
	capture     scanning.Config
}

// NewService creates a new Service with the default formatter, ID generator
// and time source
func NewService(db DB, storage Storage, capture scanning.Config) *Service {
	return NewServiceWithDeps(db, storage, capture, barcode.NewFormatter(), &ulidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, capture scanning.Config, minter Minter, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		minter:      minter,
		idGenerator: idGen,
		timeSource:  timeSrc,
		capture:     capture,
	}
}

// Mint generates a new identifier and registers it. A collision with an
// existing identifier is returned as ErrDuplicateIdentifier; there is no
// retry.
func (s *Service) Mint(kind barcode.Kind) (*Identifier, error) {
	id, err := s.minter.Generate(kind)
	if err != nil {
		return nil, fmt.Errorf("generating identifier: %w", err)
	}

	now := s.timeSource.Now()
	identifier := &Identifier{
		ID:        id,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.CreateIdentifier(identifier); err != nil {
		if errors.Is(err, ErrDuplicateIdentifier) {
			slog.Warn("Minted identifier collided with registry", "id", id, "kind", kind)
		}
		return nil, fmt.Errorf("registering identifier: %w", err)
	}

	slog.Info("Minted identifier", "id", id, "kind", kind)
	return identifier, nil
}

// GetIdentifier retrieves a registered identifier
func (s *Service) GetIdentifier(id string) (*Identifier, error) {
	identifier, err := s.db.GetIdentifier(id)
	if err != nil {
		return nil, fmt.Errorf("getting identifier: %w", err)
	}
	return identifier, nil
}

// ListIdentifiers returns all registered identifiers
func (s *Service) ListIdentifiers() ([]*Identifier, error) {
	identifiers, err := s.db.ListIdentifiers()
	if err != nil {
		return nil, fmt.Errorf("listing identifiers: %w", err)
	}
	return identifiers, nil
}

// Decode interprets a token without recording it
func (s *Service) Decode(token string) barcode.Decoded {
	return barcode.Decode(token)
}

// RecordScan decodes a captured token and appends it to the scan log
func (s *Service) RecordScan(token, source string) (*Scan, error) {
	decoded := barcode.Decode(token)
	registered := true
	if _, err := s.db.GetIdentifier(token); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("checking registry: %w", err)
		}
		registered = false
	}

	scan := &Scan{
		ID:           s.idGenerator.Generate(),
		Token:        token,
		Kind:         decoded.Kind,
		Valid:        decoded.Valid,
		Registered:   registered,
		Prescription: decoded.Prescription,
		Source:       source,
		ScannedAt:    s.timeSource.Now(),
	}
	if err := s.db.SaveScan(scan); err != nil {
		return nil, fmt.Errorf("saving scan: %w", err)
	}

	slog.Info("Recorded scan", "id", scan.ID, "kind", scan.Kind, "valid", scan.Valid, "source", source)
	return scan, nil
}

// ListScans returns the most recent scans, oldest first
func (s *Service) ListScans(limit int) ([]*Scan, error) {
	scans, err := s.db.ListScans(limit)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return scans, nil
}

// Bars renders a registered identifier as a bar graphic
func (s *Service) Bars(id string) (barcode.Graphic, error) {
	if _, err := s.db.GetIdentifier(id); err != nil {
		return barcode.Graphic{}, fmt.Errorf("getting identifier: %w", err)
	}
	return barcode.RenderBars(id), nil
}

// Label returns the SVG label for a registered identifier, rendering and
// storing it on first use
func (s *Service) Label(id string) ([]byte, error) {
	identifier, err := s.db.GetIdentifier(id)
	if err != nil {
		return nil, fmt.Errorf("getting identifier: %w", err)
	}

	if identifier.Label != "" {
		data, err := s.storage.Get(identifier.Label)
		if err == nil {
			return data, nil
		}
		slog.Warn("Stored label unreadable, rendering again", "id", id, "label", identifier.Label, "error", err)
	}

	data := barcode.RenderBars(id).SVG()
	name, err := s.storage.Save(id+".svg", data)
	if err != nil {
		return nil, fmt.Errorf("saving label: %w", err)
	}

	identifier.Label = name
	identifier.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveIdentifier(identifier); err != nil {
		// Clean up the label since the registry does not point at it
		s.storage.Delete(name)
		return nil, fmt.Errorf("updating identifier: %w", err)
	}
	return data, nil
}

// NewCaptureSession returns a started scan session using the station's
// capture settings. onToken runs inside the session's flush and must not
// block for long.
func (s *Service) NewCaptureSession(source string, onToken func(token string)) *scanning.Session {
	session := scanning.NewSession(s.capture, nil, slog.Default().With("source", source))
	session.Start(onToken)
	return session
}
