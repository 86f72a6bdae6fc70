package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/refaxia/storefront-api/internal/clients/postal"
	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/repositories"
)

var (
	errAddressRepositoryRequired = errors.New("address service: repository is required")
	errAddressClockRequired      = errors.New("address service: clock is required")
)

// ErrAddressNotFound indicates no such address in the user's book.
var ErrAddressNotFound = errors.New("address service: not found")

// ErrInvalidPhone indicates a phone that is not ten digits.
var ErrInvalidPhone = errors.New("address service: phone must be 10 digits")

// ErrAddressInvalidInput indicates missing required address fields.
var ErrAddressInvalidInput = errors.New("address service: invalid input")

// ErrAddressUnavailable indicates a backend failure.
var ErrAddressUnavailable = errors.New("address service: unavailable")

// ErrPostalCodeNotFound indicates the lookup service has no entry for the code.
var ErrPostalCodeNotFound = errors.New("address service: postal code not found")

// AddressServiceDeps wires the address book and postal lookup.
type AddressServiceDeps struct {
	Repository  repositories.AddressRepository
	Postal      PostalFetcher
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type addressService struct {
	repo   repositories.AddressRepository
	postal PostalFetcher
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewAddressService constructs the address book service.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Repository == nil {
		return nil, errAddressRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errAddressClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &addressService{
		repo:   deps.Repository,
		postal: deps.Postal,
		now:    func() time.Time { return deps.Clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// ListAddresses returns the user's saved addresses, oldest first.
func (s *addressService) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	if s == nil || s.repo == nil {
		return nil, ErrAddressUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrAddressInvalidInput)
	}

	addresses, err := s.repo.ListAddresses(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAddressUnavailable, err)
	}
	return addresses, nil
}

// GetAddress loads one saved address, enforcing ownership.
func (s *addressService) GetAddress(ctx context.Context, userID, addressID string) (domain.Address, error) {
	if s == nil || s.repo == nil {
		return domain.Address{}, ErrAddressUnavailable
	}
	uid := strings.TrimSpace(userID)
	aid := strings.TrimSpace(addressID)
	if uid == "" || aid == "" {
		return domain.Address{}, ErrAddressNotFound
	}

	address, err := s.repo.GetAddress(ctx, uid, aid)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Address{}, ErrAddressNotFound
		}
		return domain.Address{}, fmt.Errorf("%w: %v", ErrAddressUnavailable, err)
	}
	return address, nil
}

// SaveAddress creates or updates an address after validating its fields.
func (s *addressService) SaveAddress(ctx context.Context, address domain.Address) (domain.Address, error) {
	if s == nil || s.repo == nil {
		return domain.Address{}, ErrAddressUnavailable
	}
	uid := strings.TrimSpace(address.UserID)
	if uid == "" {
		return domain.Address{}, fmt.Errorf("%w: user id is required", ErrAddressInvalidInput)
	}
	if err := validateAddress(address); err != nil {
		return domain.Address{}, err
	}

	address.UserID = uid
	address.Phone = normalizePhone(address.Phone)
	if strings.TrimSpace(address.ID) == "" {
		address.ID = s.newID()
		address.CreatedAt = s.now()
	} else {
		// Updating someone else's address must fail as not-found.
		if _, err := s.GetAddress(ctx, uid, address.ID); err != nil {
			return domain.Address{}, err
		}
	}
	address.UpdatedAt = s.now()

	saved, err := s.repo.SaveAddress(ctx, address)
	if err != nil {
		return domain.Address{}, fmt.Errorf("%w: %v", ErrAddressUnavailable, err)
	}
	s.logger(ctx, "address.saved", map[string]any{
		"userId":    uid,
		"addressId": saved.ID,
	})
	return saved, nil
}

// DeleteAddress removes one saved address.
func (s *addressService) DeleteAddress(ctx context.Context, userID, addressID string) error {
	if s == nil || s.repo == nil {
		return ErrAddressUnavailable
	}
	uid := strings.TrimSpace(userID)
	aid := strings.TrimSpace(addressID)
	if uid == "" || aid == "" {
		return ErrAddressNotFound
	}

	if err := s.repo.DeleteAddress(ctx, uid, aid); err != nil {
		if isRepoNotFound(err) {
			return ErrAddressNotFound
		}
		return fmt.Errorf("%w: %v", ErrAddressUnavailable, err)
	}
	s.logger(ctx, "address.deleted", map[string]any{
		"userId":    uid,
		"addressId": aid,
	})
	return nil
}

// LookupPostalCode proxies the postal collaborator for form autofill.
func (s *addressService) LookupPostalCode(ctx context.Context, postalCode string) (domain.PostalInfo, error) {
	if s == nil || s.postal == nil {
		return domain.PostalInfo{}, ErrAddressUnavailable
	}

	info, err := s.postal.Lookup(ctx, strings.TrimSpace(postalCode))
	if err != nil {
		if errors.Is(err, postal.ErrPostalCodeNotFound) {
			return domain.PostalInfo{}, fmt.Errorf("%w: %s", ErrPostalCodeNotFound, postalCode)
		}
		return domain.PostalInfo{}, fmt.Errorf("%w: %v", ErrAddressUnavailable, err)
	}
	return info, nil
}

func validateAddress(address domain.Address) error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(address.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(address.PostalCode) == "" {
		missing = append(missing, "postalCode")
	}
	if strings.TrimSpace(address.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(address.State) == "" {
		missing = append(missing, "state")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrAddressInvalidInput, strings.Join(missing, ", "))
	}
	if normalizePhone(address.Phone) == "" {
		return ErrInvalidPhone
	}
	return nil
}
