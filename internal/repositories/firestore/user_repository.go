package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/northline-logistics/api/internal/domain"
	pfirestore "github.com/northline-logistics/api/internal/platform/firestore"
	"github.com/northline-logistics/api/internal/repositories"
)

const usersCollection = "users"

type userDocument struct {
	Name         string `firestore:"name"`
	Email        string `firestore:"email"`
	PhoneNo      string `firestore:"phoneNo,omitempty"`
	Role         string `firestore:"role"`
	Status       string `firestore:"status,omitempty"`
	ZoneAssigned string `firestore:"zoneAssigned,omitempty"`
}

// UserRepository reads accounts owned by the identity service.
type UserRepository struct {
	users *pfirestore.Collection[userDocument]
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{users: pfirestore.NewCollection[userDocument](provider, usersCollection)}, nil
}

// FindByID loads the user by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, pfirestore.NewNotFound("users.get", "user id is required")
	}
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           doc.ID,
		Name:         doc.Data.Name,
		Email:        doc.Data.Email,
		PhoneNo:      doc.Data.PhoneNo,
		Role:         strings.ToLower(strings.TrimSpace(doc.Data.Role)),
		Status:       doc.Data.Status,
		ZoneAssigned: doc.Data.ZoneAssigned,
	}, nil
}
