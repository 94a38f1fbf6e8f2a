package smoke

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/fossclear/fossclear/internal/api"
	"github.com/fossclear/fossclear/internal/auth"
	"github.com/fossclear/fossclear/internal/ledger"
)

func TestSmoke(t *testing.T) {
	os.Setenv("FOSSCLEAR_DEV_TOKEN", "test-token")
	defer os.Unsetenv("FOSSCLEAR_DEV_TOKEN")

	service := api.NewClearingService(ledger.NewInMemoryStore())

	router := api.NewRouter(&api.Handler{
		Auth:    auth.NewAuthenticatorFromEnv(),
		Service: service,
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	// auth gate sanity check
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/items/anything/history", nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	_ = res.Body.Close()

	// healthz stays open
	res, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", res.StatusCode)
	}
	_ = res.Body.Close()

	registerUpload(t, srv.URL)
	applyDecision(t, srv.URL)
	checkFindings(t, srv.URL)
}

func registerUpload(t *testing.T, baseURL string) {
	t.Helper()

	body := bytes.NewBufferString(`{
	  "upload_id": "u1",
	  "items": [
	    {"item_id": "123", "path": "/vendor", "is_dir": true},
	    {"item_id": "124", "parent_id": "123", "path": "/vendor/readme.txt",
	     "findings": [{"finding_id": "456", "statement": "Copyright (c) 2019 Example Corp"}]}
	  ]
	}`)
	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/uploads", body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status: %d", res.StatusCode)
	}
}

func applyDecision(t *testing.T, baseURL string) {
	t.Helper()

	body := bytes.NewBufferString(`{"target_id":"123","kind":"do_not_use","skip_option":"noLicense"}`)
	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/decisions", body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("apply status: %d", res.StatusCode)
	}

	var payload struct {
		EffectiveSkip       string   `json:"effective_skip"`
		Applied             int      `json:"applied"`
		DeactivatedFindings []string `json:"deactivated_findings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// do_not_use applies regardless of detected licenses, so the requested
	// skip must be overridden and the finding must go inactive.
	if payload.EffectiveSkip != "none" {
		t.Fatalf("effective_skip = %s", payload.EffectiveSkip)
	}
	if payload.Applied != 2 {
		t.Fatalf("applied = %d", payload.Applied)
	}
	if len(payload.DeactivatedFindings) != 1 || payload.DeactivatedFindings[0] != "456" {
		t.Fatalf("deactivated = %v", payload.DeactivatedFindings)
	}
}

func checkFindings(t *testing.T, baseURL string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/items/124/findings", nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("findings: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("findings status: %d", res.StatusCode)
	}

	var payload struct {
		Findings []struct {
			FindingID string `json:"finding_id"`
			Active    bool   `json:"active"`
		} `json:"findings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Findings) != 1 || payload.Findings[0].Active {
		t.Fatalf("findings = %+v", payload.Findings)
	}
}
