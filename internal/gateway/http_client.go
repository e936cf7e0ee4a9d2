package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient talks to the platform gateway's REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs a gateway client.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type memberPayload struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
	Bot   bool     `json:"bot"`
}

// Member fetches the subject's live membership in one tenant. A 404 from
// the gateway maps to ErrNotMember.
func (c *HTTPClient) Member(ctx context.Context, tenantID, subjectID string) (*Member, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/tenants/%s/members/%s", c.baseURL, tenantID, subjectID), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotMember
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("gateway: member %s/%s returned status %d", tenantID, subjectID, resp.StatusCode)
	}

	var payload memberPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("gateway: decode member: %w", err)
	}
	return &Member{
		SubjectID: payload.ID,
		TenantID:  tenantID,
		RoleIDs:   payload.Roles,
		Bot:       payload.Bot,
	}, nil
}

// SetMemberRoles replaces the member's role set.
func (c *HTTPClient) SetMemberRoles(ctx context.Context, tenantID, subjectID string, roleIDs []string) error {
	if roleIDs == nil {
		roleIDs = []string{}
	}
	body, err := json.Marshal(map[string][]string{"roles": roleIDs})
	if err != nil {
		return fmt.Errorf("gateway: marshal roles: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/tenants/%s/members/%s", c.baseURL, tenantID, subjectID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway: set roles %s/%s returned status %d", tenantID, subjectID, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
