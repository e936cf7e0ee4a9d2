package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/concord-collective/concord/internal/permissions"
	"github.com/concord-collective/concord/internal/shared"
)

// HTTPClient talks to the central backend's REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs a client for the backend at baseURL. The token
// is sent as a bearer credential on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type subjectPayload struct {
	ID        string            `json:"id"`
	Tenants   map[string]uint32 `json:"tenants"`
	OwnerOf   string            `json:"ownerOf"`
	AdvisorOf string            `json:"advisorOf"`
	VoterOf   string            `json:"voterOf"`
	Exec      bool              `json:"exec"`
	Observer  bool              `json:"observer"`
}

type tenantPayload struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Alias           string            `json:"alias"`
	OwnerID         string            `json:"ownerId"`
	AdvisorID       string            `json:"advisorId"`
	VoterID         string            `json:"voterId"`
	SingleColorRole bool              `json:"singleColorRole"`
	FlagRoles       map[string]string `json:"flagRoles"`
	OwnerRole       string            `json:"ownerRole"`
	AdvisorRole     string            `json:"advisorRole"`
	VoterRole       string            `json:"voterRole"`
	BotRole         string            `json:"botRole"`
}

type structuralPatchPayload struct {
	VoterID   *string `json:"voterId"`
	OwnerID   *string `json:"ownerId"`
	AdvisorID *string `json:"advisorId"`
}

// Subject fetches the aggregate record for a user.
func (c *HTTPClient) Subject(ctx context.Context, id string) (*Subject, error) {
	var payload subjectPayload
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%s", id), nil, &payload); err != nil {
		return nil, err
	}
	subject := &Subject{
		ID:         payload.ID,
		TenantBits: make(map[string]permissions.Flags, len(payload.Tenants)),
		OwnerOf:    payload.OwnerOf,
		AdvisorOf:  payload.AdvisorOf,
		VoterOf:    payload.VoterOf,
		Exec:       payload.Exec,
		Observer:   payload.Observer,
	}
	for tenantID, bits := range payload.Tenants {
		subject.TenantBits[tenantID] = permissions.Flags(bits)
	}
	return subject, nil
}

// Tenant fetches one tenant record.
func (c *HTTPClient) Tenant(ctx context.Context, id string) (*Tenant, error) {
	var payload tenantPayload
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tenants/%s", id), nil, &payload); err != nil {
		return nil, err
	}
	tenant := payload.toDomain()
	return &tenant, nil
}

// Tenants fetches the full catalog.
func (c *HTTPClient) Tenants(ctx context.Context) ([]Tenant, error) {
	var payloads []tenantPayload
	if err := c.do(ctx, http.MethodGet, "/tenants", nil, &payloads); err != nil {
		return nil, err
	}
	tenants := make([]Tenant, len(payloads))
	for i, payload := range payloads {
		tenants[i] = payload.toDomain()
	}
	return tenants, nil
}

// SetTenantBits replaces the subject's assignable bitmask for one tenant.
func (c *HTTPClient) SetTenantBits(ctx context.Context, subjectID, tenantID string, bits permissions.Flags) error {
	body := map[string]uint32{"bits": uint32(bits.Assignable())}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/users/%s/tenants/%s/permissions", subjectID, tenantID), body, nil)
}

// GrantCommittee adds a committee membership row. Idempotent.
func (c *HTTPClient) GrantCommittee(ctx context.Context, subjectID string, flag CommitteeFlag) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/users/%s/committee/%s", subjectID, flag), nil, nil)
}

// RevokeCommittee removes a committee membership row. Idempotent.
func (c *HTTPClient) RevokeCommittee(ctx context.Context, subjectID string, flag CommitteeFlag) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/users/%s/committee/%s", subjectID, flag), nil, nil)
}

// PatchTenantRoles writes all three structural slots in one call.
func (c *HTTPClient) PatchTenantRoles(ctx context.Context, tenantID string, patch StructuralPatch) error {
	body := structuralPatchPayload{
		VoterID:   patch.VoterID,
		OwnerID:   patch.OwnerID,
		AdvisorID: patch.AdvisorID,
	}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/tenants/%s", tenantID), body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("directory: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("directory: %s %s: %w", method, path, shared.ErrNotFound)
	case resp.StatusCode >= 400:
		return fmt.Errorf("directory: %s %s returned status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("directory: decode response: %w", err)
		}
	}
	return nil
}

func (p tenantPayload) toDomain() Tenant {
	return Tenant{
		ID:              p.ID,
		Name:            p.Name,
		Alias:           p.Alias,
		OwnerID:         p.OwnerID,
		AdvisorID:       p.AdvisorID,
		VoterID:         p.VoterID,
		SingleColorRole: p.SingleColorRole,
		FlagRoles:       p.FlagRoles,
		OwnerRoleID:     p.OwnerRole,
		AdvisorRoleID:   p.AdvisorRole,
		VoterRoleID:     p.VoterRole,
		BotRoleID:       p.BotRole,
	}
}
