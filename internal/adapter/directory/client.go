// Package directory is the HTTP client for the platform's identity
// provider. It implements the small slice of that API the linker needs:
// looking up an identity by email and creating one with an invite.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/neolearn/subsync/internal/domain"
)

// Compile-time check: Client implements domain.IdentityDirectory.
var _ domain.IdentityDirectory = (*Client)(nil)

// Client talks to the identity provider's admin API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a directory client for the given base URL and bearer
// token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type identityPayload struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (p identityPayload) toDomain() domain.Identity {
	return domain.Identity{ID: p.ID, Email: p.Email, CreatedAt: p.CreatedAt}
}

// FindByEmail looks up an identity. Returns domain.ErrIdentityNotFound
// when the provider has no identity for the email.
func (c *Client) FindByEmail(ctx context.Context, email string) (domain.Identity, error) {
	endpoint := fmt.Sprintf("%s/v1/identities?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("building identity lookup request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("looking up identity: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload struct {
			Identities []identityPayload `json:"identities"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return domain.Identity{}, fmt.Errorf("decoding identity lookup response: %w", err)
		}
		if len(payload.Identities) == 0 {
			return domain.Identity{}, domain.ErrIdentityNotFound
		}
		return payload.Identities[0].toDomain(), nil
	case http.StatusNotFound:
		return domain.Identity{}, domain.ErrIdentityNotFound
	default:
		return domain.Identity{}, fmt.Errorf("identity lookup returned status %d", resp.StatusCode)
	}
}

// CreateWithInvite creates an identity and triggers the provider's
// invite email. The metadata travels with the identity so the wider
// platform can associate it with its tenant.
func (c *Client) CreateWithInvite(ctx context.Context, email string, meta domain.InviteMetadata) (domain.Identity, error) {
	body, err := json.Marshal(map[string]any{
		"email":  email,
		"invite": true,
		"metadata": map[string]string{
			"role":      meta.Role,
			"name":      meta.Name,
			"tenant_id": meta.TenantID,
		},
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("encoding invite request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/identities", bytes.NewReader(body))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("building invite request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("creating identity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.Identity{}, fmt.Errorf("identity creation returned status %d", resp.StatusCode)
	}

	var payload identityPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Identity{}, fmt.Errorf("decoding identity creation response: %w", err)
	}
	return payload.toDomain(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
