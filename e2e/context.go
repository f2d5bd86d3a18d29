// Package e2e runs Gherkin scenarios against a live gradegate server.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TestContext holds the per-scenario HTTP client, identities and the last
// response.
type TestContext struct {
	BaseURL    string
	AdminToken string
	client     *http.Client

	ViewerID  string
	Scope     string
	TenantID  string
	LearnerID string

	ProposalID string

	lastStatus int
	lastBody   []byte
}

func NewTestContext(baseURL, adminToken string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: adminToken,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset gives the scenario fresh identities so scenarios never share state.
func (tc *TestContext) Reset() {
	tc.ViewerID = uuid.NewString()
	tc.Scope = "teacher"
	tc.TenantID = uuid.NewString()
	tc.LearnerID = uuid.NewString()
	tc.ProposalID = ""
	tc.lastStatus = 0
	tc.lastBody = nil
}

func (tc *TestContext) Do(method, path string, body any, admin bool) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Viewer-ID", tc.ViewerID)
	req.Header.Set("X-Viewer-Scope", tc.Scope)
	req.Header.Set("X-Tenant-ID", tc.TenantID)
	if admin {
		req.Header.Set("X-Admin-Token", tc.AdminToken)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField reads a dotted path such as "proposal.id" from the last
// JSON body.
func (tc *TestContext) GetResponseField(path string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	cur := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: not an object at %q", path, part)
		}
		if cur, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q missing", path)
		}
	}
	return cur, nil
}

func (tc *TestContext) GetViewerID() string     { return tc.ViewerID }
func (tc *TestContext) GetLearnerID() string    { return tc.LearnerID }
func (tc *TestContext) GetTenantID() string     { return tc.TenantID }
func (tc *TestContext) GetProposalID() string   { return tc.ProposalID }
func (tc *TestContext) SetProposalID(id string) { tc.ProposalID = id }
func (tc *TestContext) SetScope(scope string)   { tc.Scope = scope }
