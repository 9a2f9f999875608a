package domain

// Identity is the authenticated caller, derived from a validated session.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
}

// ProviderIdentity is what an external identity provider tells us about a
// user after a successful sign-in.
type ProviderIdentity struct {
	Provider      string
	Subject       string // stable id assigned by the provider
	Email         string
	EmailVerified bool
	Name          string
}
