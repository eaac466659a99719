package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/autox/api/internal/domain"
)

// Role constants carried in the role custom claim of marketplace ID tokens.
const (
	RoleConsumer         = string(domain.RoleConsumer)
	RoleVehicleOwner     = string(domain.RoleVehicleOwner)
	RoleMaterialSupplier = string(domain.RoleMaterialSupplier)
	RoleAdmin            = string(domain.RoleAdmin)
)

// rolePrecedence orders roles when an identity carries several; the first match becomes the actor role.
var rolePrecedence = []string{RoleAdmin, RoleVehicleOwner, RoleMaterialSupplier, RoleConsumer}

// Identity captures the authenticated principal details extracted from a Firebase ID token.
type Identity struct {
	UID       string
	Email     string
	Roles     []string
	PartnerID string

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity includes any of the provided roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// Actor converts the identity into the caller passed to services. Partner roles without a partner id
// degrade to consumer.
func (i *Identity) Actor() domain.Actor {
	if i == nil {
		return domain.Actor{}
	}
	actor := domain.Actor{ID: i.UID, Role: domain.RoleConsumer}
	for _, role := range rolePrecedence {
		if !i.HasRole(role) {
			continue
		}
		if (role == RoleVehicleOwner || role == RoleMaterialSupplier) && i.PartnerID == "" {
			continue
		}
		actor.Role = domain.Role(role)
		break
	}
	if actor.Role == domain.RoleVehicleOwner || actor.Role == domain.RoleMaterialSupplier {
		actor.PartnerID = i.PartnerID
	}
	return actor
}

type contextKey string

const identityContextKey contextKey = "github.com/autox/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
