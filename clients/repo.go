package clients

import "context"

// Store holds client registrations.
type Store interface {
	Mode() Mode
	// Register persists c and returns it with a generated ID and plaintext secret.
	// The plaintext secret is never returned again.
	Register(ctx context.Context, c *Client) (*Client, error)
	// Lookup returns the record with Secret cleared and SecretRef populated.
	Lookup(ctx context.Context, clientID string) (*Client, error)
	ValidateSecret(ctx context.Context, clientID, secret string) error
	Delete(ctx context.Context, clientID string) error
}
