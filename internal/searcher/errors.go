package searcher

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/collector"
	apperrors "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/errors"
)

// FieldNotFoundError rejects a facet request naming a field that does not
// exist or is not a facet field. It is raised before any segment is read.
type FieldNotFoundError struct {
	Field  string
	Reason string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("facet field %q: %s", e.Field, e.Reason)
}

func (e *FieldNotFoundError) Unwrap() error {
	return apperrors.ErrFieldNotFound
}

type InvalidLimitError struct {
	Limit int
}

func (e *InvalidLimitError) Error() string {
	return fmt.Sprintf("limit must be positive, got %d", e.Limit)
}

func (e *InvalidLimitError) Unwrap() error {
	return apperrors.ErrInvalidLimit
}

// InvalidFacetError reports a malformed facet path in a request when strict
// facet validation is on.
type InvalidFacetError struct {
	Field string
	Facet string
	Err   error
}

func (e *InvalidFacetError) Error() string {
	return fmt.Sprintf("facet field %q: invalid prefix %q: %v", e.Field, e.Facet, e.Err)
}

func (e *InvalidFacetError) Unwrap() []error {
	return []error{apperrors.ErrInvalidInput, e.Err}
}

// ScanError aborts a search whose traversal failed on some segment.
type ScanError struct {
	SegmentOrd uint32
	Segment    string
	Err        error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scanning segment %d (%s): %v", e.SegmentOrd, e.Segment, e.Err)
}

func (e *ScanError) Unwrap() []error {
	return []error{apperrors.ErrScanFailure, e.Err}
}

// InvalidAddressError rejects a document address that does not exist in the
// searcher's snapshot.
type InvalidAddressError struct {
	Address collector.DocAddress
	Reason  string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("document address %s: %s", e.Address, e.Reason)
}

func (e *InvalidAddressError) Unwrap() error {
	return apperrors.ErrInvalidAddress
}

// StorageError reports a failure to load a stored document. It affects only
// the fetch that raised it.
type StorageError struct {
	Address collector.DocAddress
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("loading document %s: %v", e.Address, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{apperrors.ErrStorage, e.Err}
}
