package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/refaxia/storefront-api/internal/domain"
	pfirestore "github.com/refaxia/storefront-api/internal/platform/firestore"
)

const addressCollection = "addresses"

type addressDocument struct {
	UserID         string    `firestore:"userId"`
	Street         string    `firestore:"street"`
	Colony         string    `firestore:"colony"`
	ExteriorNumber string    `firestore:"exteriorNumber"`
	InteriorNumber string    `firestore:"interiorNumber,omitempty"`
	PostalCode     string    `firestore:"postalCode"`
	City           string    `firestore:"city"`
	State          string    `firestore:"state"`
	Phone          string    `firestore:"phone"`
	Reference      string    `firestore:"reference,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

// AddressRepository stores the saved address book in a flat collection keyed
// by address ID, with ownership checked against the userId field.
type AddressRepository struct {
	base *pfirestore.BaseRepository[addressDocument]
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{
		base: pfirestore.NewBaseRepository[addressDocument](provider, addressCollection, nil, nil),
	}, nil
}

// ListAddresses returns the user's saved addresses ordered by creation time.
func (r *AddressRepository) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("userId", "==", uid).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	addresses := make([]domain.Address, 0, len(docs))
	for _, doc := range docs {
		addresses = append(addresses, addressFromDocument(doc.ID, doc.Data))
	}
	return addresses, nil
}

// GetAddress loads a single address, enforcing that it belongs to the user.
func (r *AddressRepository) GetAddress(ctx context.Context, userID, addressID string) (domain.Address, error) {
	if r == nil || r.base == nil {
		return domain.Address{}, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Address{}, errors.New("address repository: user id is required")
	}

	doc, err := r.base.Get(ctx, strings.TrimSpace(addressID))
	if err != nil {
		return domain.Address{}, err
	}
	if doc.Data.UserID != uid {
		// Cross-user lookups present as missing documents.
		return domain.Address{}, pfirestore.WrapError("addresses.get", status.Error(codes.NotFound, "address not found"))
	}
	return addressFromDocument(doc.ID, doc.Data), nil
}

// SaveAddress upserts the address document.
func (r *AddressRepository) SaveAddress(ctx context.Context, address domain.Address) (domain.Address, error) {
	if r == nil || r.base == nil {
		return domain.Address{}, errors.New("address repository not initialised")
	}
	id := strings.TrimSpace(address.ID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	uid := strings.TrimSpace(address.UserID)
	if uid == "" {
		return domain.Address{}, errors.New("address repository: user id is required")
	}

	now := time.Now().UTC()
	createdAt := address.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := addressDocument{
		UserID:         uid,
		Street:         strings.TrimSpace(address.Street),
		Colony:         strings.TrimSpace(address.Colony),
		ExteriorNumber: strings.TrimSpace(address.ExteriorNumber),
		InteriorNumber: strings.TrimSpace(address.InteriorNumber),
		PostalCode:     strings.TrimSpace(address.PostalCode),
		City:           strings.TrimSpace(address.City),
		State:          strings.TrimSpace(address.State),
		Phone:          strings.TrimSpace(address.Phone),
		Reference:      strings.TrimSpace(address.Reference),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}

	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.Address{}, err
	}

	saved := addressFromDocument(id, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// DeleteAddress removes the address after verifying ownership.
func (r *AddressRepository) DeleteAddress(ctx context.Context, userID, addressID string) error {
	if r == nil || r.base == nil {
		return errors.New("address repository not initialised")
	}
	if _, err := r.GetAddress(ctx, userID, addressID); err != nil {
		return err
	}
	return r.base.Delete(ctx, strings.TrimSpace(addressID))
}

func addressFromDocument(id string, doc addressDocument) domain.Address {
	return domain.Address{
		ID:             id,
		UserID:         doc.UserID,
		Street:         doc.Street,
		Colony:         doc.Colony,
		ExteriorNumber: doc.ExteriorNumber,
		InteriorNumber: doc.InteriorNumber,
		PostalCode:     doc.PostalCode,
		City:           doc.City,
		State:          doc.State,
		Phone:          doc.Phone,
		Reference:      doc.Reference,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}
