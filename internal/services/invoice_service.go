package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/platform/storage"
)

var (
	errInvoiceUploaderRequired = errors.New("invoice service: uploader is required")
	errInvoiceClockRequired    = errors.New("invoice service: clock is required")
)

// ErrInvalidTaxID indicates the RFC does not match the SAT format.
var ErrInvalidTaxID = errors.New("invoice service: invalid tax id")

// ErrUploadFailed indicates the tax document could not be stored. No partial
// invoice state survives this error.
var ErrUploadFailed = errors.New("invoice service: upload failed")

// ErrInvoiceInvalidInput indicates a missing document or identifier.
var ErrInvoiceInvalidInput = errors.New("invoice service: invalid input")

// rfcPattern matches Mexican RFC tax identifiers, natural and legal persons.
var rfcPattern = regexp.MustCompile(`^[A-Z&Ñ]{3,4}[0-9]{6}[A-Z0-9]{3}$`)

// DocumentUploader stores tax documents and returns the object path.
type DocumentUploader interface {
	Upload(ctx context.Context, object, contentType string, body io.Reader) (storage.UploadResult, error)
}

// InvoiceServiceDeps wires the document store.
type InvoiceServiceDeps struct {
	Uploader DocumentUploader
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type invoiceService struct {
	uploader DocumentUploader
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewInvoiceService constructs the invoice collector.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Uploader == nil {
		return nil, errInvoiceUploaderRequired
	}
	if deps.Clock == nil {
		return nil, errInvoiceClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &invoiceService{
		uploader: deps.Uploader,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

// Collect validates the RFC, stores the tax document, and returns the
// completed invoice request holding only the storage path.
func (s *invoiceService) Collect(ctx context.Context, userID, rfc, fileName, contentType string, document io.Reader) (domain.InvoiceRequest, error) {
	if s == nil || s.uploader == nil {
		return domain.InvoiceRequest{}, ErrUploadFailed
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.InvoiceRequest{}, fmt.Errorf("%w: user id is required", ErrInvoiceInvalidInput)
	}
	if document == nil {
		return domain.InvoiceRequest{}, fmt.Errorf("%w: tax document is required", ErrInvoiceInvalidInput)
	}

	normalised, err := NormalizeRFC(rfc)
	if err != nil {
		return domain.InvoiceRequest{}, err
	}

	object, err := storage.TaxDocumentPath(uid, fileName, s.now())
	if err != nil {
		return domain.InvoiceRequest{}, fmt.Errorf("%w: %v", ErrInvoiceInvalidInput, err)
	}

	result, err := s.uploader.Upload(ctx, object, contentType, document)
	if err != nil {
		s.logger(ctx, "invoice.upload_failed", map[string]any{
			"userId": uid,
			"error":  err.Error(),
		})
		return domain.InvoiceRequest{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	s.logger(ctx, "invoice.collected", map[string]any{
		"userId": uid,
		"path":   result.Path,
		"size":   result.Size,
	})

	return domain.InvoiceRequest{
		Required:        true,
		RFC:             normalised,
		TaxDocumentPath: result.Path,
	}, nil
}

// NormalizeRFC upper-cases and validates an RFC, returning ErrInvalidTaxID on
// format mismatch.
func NormalizeRFC(rfc string) (string, error) {
	normalised := strings.ToUpper(strings.TrimSpace(rfc))
	if !rfcPattern.MatchString(normalised) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaxID, rfc)
	}
	return normalised, nil
}
