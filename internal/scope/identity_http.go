package scope

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	id "sentra/pkg/domain"
	dErrors "sentra/pkg/domain-errors"
)

const defaultIdentityTimeout = 5 * time.Second

// HTTPIdentityClient looks up tenant membership from the identity service
// over its internal REST API.
type HTTPIdentityClient struct {
	baseURL string
	client  *http.Client
}

type HTTPIdentityOption func(*HTTPIdentityClient)

func WithHTTPClient(client *http.Client) HTTPIdentityOption {
	return func(c *HTTPIdentityClient) { c.client = client }
}

func NewHTTPIdentityClient(baseURL string, opts ...HTTPIdentityOption) *HTTPIdentityClient {
	c := &HTTPIdentityClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultIdentityTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type membershipResponse struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

func (c *HTTPIdentityClient) Lookup(ctx context.Context, userID id.UserID) (Identity, error) {
	url := fmt.Sprintf("%s/internal/users/%s/membership", c.baseURL, userID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build membership request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Identity{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity service unreachable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Identity{}, dErrors.New(dErrors.CodeNotFound, "user has no tenant membership")
	default:
		return Identity{}, dErrors.Newf(dErrors.CodeUnavailable, "identity service returned %d", resp.StatusCode)
	}

	var body membershipResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode membership response")
	}

	tenantID, err := id.ParseTenantID(body.TenantID)
	if err != nil {
		return Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "invalid tenant id in membership response")
	}
	role, err := ParseRole(body.Role)
	if err != nil {
		return Identity{}, err
	}
	return Identity{TenantID: tenantID, Role: role}, nil
}
