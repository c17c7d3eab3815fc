package auth

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

// Principal is the authenticated caller. It is one of UserPrincipal,
// MerchantPrincipal or AdminPrincipal.
type Principal interface {
	AccountID() primitive.ObjectID
	Role() string
	isPrincipal()
}

type UserPrincipal struct {
	User *models.User
}

type MerchantPrincipal struct {
	Merchant *models.Merchant
}

type AdminPrincipal struct {
	User *models.User
}

func (p UserPrincipal) AccountID() primitive.ObjectID     { return p.User.ID }
func (p MerchantPrincipal) AccountID() primitive.ObjectID { return p.Merchant.ID }
func (p AdminPrincipal) AccountID() primitive.ObjectID    { return p.User.ID }

func (UserPrincipal) Role() string     { return models.RoleUser }
func (MerchantPrincipal) Role() string { return models.RoleMerchant }
func (AdminPrincipal) Role() string    { return models.RoleAdmin }

func (UserPrincipal) isPrincipal()     {}
func (MerchantPrincipal) isPrincipal() {}
func (AdminPrincipal) isPrincipal()    {}

type UserFinder interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

type MerchantFinder interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Merchant, error)
}

// Resolver maps a token to a Principal. Users are looked up first, then
// merchants, since both share the token id space.
type Resolver struct {
	tokens    *Tokens
	users     UserFinder
	merchants MerchantFinder
}

func NewResolver(tokens *Tokens, users UserFinder, merchants MerchantFinder) *Resolver {
	return &Resolver{tokens: tokens, users: users, merchants: merchants}
}

func (r *Resolver) Resolve(ctx context.Context, tokenString string) (Principal, error) {
	id, err := r.tokens.Parse(tokenString)
	if err != nil {
		return nil, apperr.Auth("Not authorized, token failed")
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.Auth("Not authorized, token failed")
	}

	user, err := r.users.FindByID(ctx, oid)
	switch {
	case err == nil:
		if user.Role == models.RoleAdmin {
			return AdminPrincipal{User: user}, nil
		}
		return UserPrincipal{User: user}, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	merchant, err := r.merchants.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Auth("Not authorized, token failed")
		}
		return nil, err
	}
	return MerchantPrincipal{Merchant: merchant}, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
