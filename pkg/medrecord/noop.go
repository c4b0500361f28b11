package medrecord

import "context"

// noopIdentityResolver echoes the actor id back as the display name.
type noopIdentityResolver struct{}

// NewNoopIdentityResolver creates an identity resolver for deployments
// without a directory service.
func NewNoopIdentityResolver() IdentityResolver {
	return noopIdentityResolver{}
}

func (noopIdentityResolver) Resolve(_ context.Context, actorID string) (Identity, error) {
	return Identity{Name: actorID, Role: "user"}, nil
}

// noopFieldValidator accepts every payload.
type noopFieldValidator struct{}

// NewNoopFieldValidator creates a field validator that enforces no
// domain-specific rules beyond the generic gate.
func NewNoopFieldValidator() FieldValidator {
	return noopFieldValidator{}
}

func (noopFieldValidator) ValidateFields(context.Context, Payload) error {
	return nil
}

// staticDeleteAuthorizer grants the delete capability to a fixed set of
// actor ids.
type staticDeleteAuthorizer struct {
	allowed map[string]struct{}
}

// NewStaticDeleteAuthorizer creates a delete authorizer that allows
// exactly the given actor ids. With no ids it denies everyone.
func NewStaticDeleteAuthorizer(actorIDs ...string) DeleteAuthorizer {
	allowed := make(map[string]struct{}, len(actorIDs))
	for _, id := range actorIDs {
		allowed[id] = struct{}{}
	}
	return &staticDeleteAuthorizer{allowed: allowed}
}

func (a *staticDeleteAuthorizer) CanDelete(_ context.Context, actorID string) (bool, error) {
	_, ok := a.allowed[actorID]
	return ok, nil
}

// roleDeleteAuthorizer grants the delete capability based on the role the
// identity resolver reports for the actor.
type roleDeleteAuthorizer struct {
	resolver IdentityResolver
	roles    map[string]struct{}
}

// NewRoleDeleteAuthorizer creates a delete authorizer that allows actors
// whose resolved role is in the given set (e.g. "admin").
func NewRoleDeleteAuthorizer(resolver IdentityResolver, roles ...string) DeleteAuthorizer {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return &roleDeleteAuthorizer{resolver: resolver, roles: allowed}
}

func (a *roleDeleteAuthorizer) CanDelete(ctx context.Context, actorID string) (bool, error) {
	identity, err := a.resolver.Resolve(ctx, actorID)
	if err != nil {
		return false, err
	}
	_, ok := a.roles[identity.Role]
	return ok, nil
}
