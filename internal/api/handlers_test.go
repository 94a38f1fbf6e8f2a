package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fossclear/fossclear/internal/auth"
	"github.com/fossclear/fossclear/internal/ledger"
	"github.com/fossclear/fossclear/pkg/types"
)

func testRouter(t *testing.T) (http.Handler, *ClearingService) {
	t.Helper()
	svc := NewClearingService(ledger.NewInMemoryStore())
	svc.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	router := NewRouter(&Handler{Auth: &auth.TokenAuthenticator{}, Service: svc})
	return router, svc
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedUpload(t *testing.T, router http.Handler) {
	t.Helper()
	rec := doJSON(t, router, "POST", "/v1/uploads", types.RegisterUploadRequest{
		UploadID: "u1",
		Items: []types.UploadItem{
			{ItemID: "123", Path: "/vendor", IsDir: true},
			{
				ItemID:   "124",
				ParentID: "123",
				Path:     "/vendor/readme.txt",
				Findings: []types.UploadFinding{{FindingID: "456", Statement: "Copyright (c) 2019 Example Corp"}},
			},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	router, _ := testRouter(t)
	rec := doJSON(t, router, "GET", "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestApplyDecisionEndpoint(t *testing.T) {
	router, svc := testRouter(t)
	seedUpload(t, router)

	rec := doJSON(t, router, "POST", "/v1/decisions", types.ApplyDecisionRequest{
		TargetID:   "123",
		Kind:       "irrelevant",
		SkipOption: "noLicense",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	var resp types.ApplyDecisionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Applied != 2 || resp.EffectiveSkip != "none" {
		t.Fatalf("resp = %+v", resp)
	}

	finding, _ := svc.Store.GetFinding("456")
	if finding.Active {
		t.Fatal("finding should be inactive")
	}
}

func TestApplyDecisionEndpointRejectsUnknownKind(t *testing.T) {
	router, _ := testRouter(t)
	seedUpload(t, router)

	rec := doJSON(t, router, "POST", "/v1/decisions", types.ApplyDecisionRequest{TargetID: "123", Kind: "BogusKind"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestApplyDecisionEndpointMissingTarget(t *testing.T) {
	router, _ := testRouter(t)
	seedUpload(t, router)

	rec := doJSON(t, router, "POST", "/v1/decisions", types.ApplyDecisionRequest{TargetID: "999", Kind: "irrelevant"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHistoryEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	seedUpload(t, router)

	doJSON(t, router, "POST", "/v1/decisions", types.ApplyDecisionRequest{TargetID: "123", Kind: "irrelevant"})
	doJSON(t, router, "POST", "/v1/decisions", types.ApplyDecisionRequest{TargetID: "123", Kind: "do_not_use"})

	rec := doJSON(t, router, "GET", "/v1/items/123/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp types.HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 2 || resp.Entries[1].Seq != 2 {
		t.Fatalf("entries = %+v", resp.Entries)
	}
}

func TestFindingsEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	seedUpload(t, router)

	rec := doJSON(t, router, "GET", "/v1/items/124/findings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp types.FindingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Findings) != 1 || !resp.Findings[0].Active {
		t.Fatalf("findings = %+v", resp.Findings)
	}
}

func TestUploadStatusEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	seedUpload(t, router)

	rec := doJSON(t, router, "GET", "/v1/uploads/u1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp types.UploadStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Grade != "F" || resp.Undecided != 2 {
		t.Fatalf("status = %+v", resp)
	}
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	svc := NewClearingService(ledger.NewInMemoryStore())
	router := NewRouter(&Handler{Auth: &auth.TokenAuthenticator{APIToken: "secret"}, Service: svc})

	req := httptest.NewRequest("POST", "/v1/decisions", bytes.NewBufferString("{}"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/v1/decisions", bytes.NewBufferString(`{"target_id":"x","kind":"irrelevant"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code == http.StatusUnauthorized {
		t.Fatal("valid token must pass auth")
	}
}

func TestServiceNotConfigured(t *testing.T) {
	router := NewRouter(&Handler{Auth: &auth.TokenAuthenticator{}, Service: nil})
	rec := doJSON(t, router, "POST", "/v1/decisions", types.ApplyDecisionRequest{TargetID: "1", Kind: "irrelevant"})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rec.Code)
	}

	// Every service-backed route must answer 501, not panic.
	for _, path := range []string{
		"/v1/items/1/history",
		"/v1/items/1/findings",
		"/v1/items/1/export",
		"/v1/uploads/u1/status",
	} {
		rec := doJSON(t, router, "GET", path, nil)
		if rec.Code != http.StatusNotImplemented {
			t.Fatalf("%s status = %d, want 501", path, rec.Code)
		}
	}
	rec = doJSON(t, router, "POST", "/v1/uploads", types.RegisterUploadRequest{UploadID: "u1"})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("uploads status = %d, want 501", rec.Code)
	}
}
