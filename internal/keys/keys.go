package keys

// Package keys centralizes Redis key construction for the reputation store.
// It is kept in internal to avoid leaking key formats to public API.

// Reputation returns the per-identity hash key holding one counter per
// suspicious-activity category.
func Reputation(id string) string { return "sentriq:{" + id + "}:reputation" }

// Block returns the per-identity key whose presence marks an active block.
// The value is a JSON block record; expiry is enforced by the store TTL.
func Block(id string) string { return "sentriq:{" + id + "}:block" }

// Identity holds precomputed keys for one identity to avoid repeated
// concatenations on the request path.
type Identity struct {
	Reputation string
	Block      string
}

// For returns the set of precomputed keys for the provided identity.
// The hash tag keeps both keys in the same cluster slot so they can be
// pipelined together.
func For(id string) Identity {
	prefix := "sentriq:{" + id + "}:"
	return Identity{
		Reputation: prefix + "reputation",
		Block:      prefix + "block",
	}
}
