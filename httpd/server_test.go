package httpd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marcbria/omp"
	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/gateway"
	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/observability"
	"github.com/marcbria/omp/store/memory"
	"github.com/marcbria/omp/types"
)

type fixture struct {
	server   *Server
	catalog  *catalog.Memory
	provider *gateway.Hosted
	paywall  *omp.Paywall
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cat := catalog.NewMemory()
	provider := gateway.NewHosted("manual-fee", "https://pay.example.org/checkout", []byte("secret"))

	pw := omp.New(memory.New(), cat, omp.WithProvider(provider))
	if err := pw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = pw.Stop() })

	return &fixture{
		server:   New(pw, cat, "https://press.example.org/login", slog.Default()),
		catalog:  cat,
		provider: provider,
		paywall:  pw,
	}
}

func (f *fixture) putAsset(price *types.Money) catalog.AssetRef {
	ref := catalog.AssetRef{
		WorkID:   id.NewWorkID(),
		FormatID: id.NewFormatID(),
		FileID:   id.NewFileID(),
		Revision: 1,
	}
	f.catalog.Put(&catalog.Asset{
		Ref:       ref,
		Price:     price,
		Approved:  true,
		Available: true,
	})
	return ref
}

func downloadPath(ref catalog.AssetRef) string {
	return fmt.Sprintf("/works/%s/formats/%s/files/%s/%d",
		ref.WorkID, ref.FormatID, ref.FileID, ref.Revision)
}

func (f *fixture) do(t *testing.T, method, path, identity string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if identity != "" {
		req.Header.Set(IdentityHeader, identity)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestDownloadFreeAsset(t *testing.T) {
	f := newFixture(t)
	ref := f.putAsset(nil)

	rec := f.do(t, http.MethodGet, downloadPath(ref), "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rec.Code, rec.Body)
	}
}

func TestDownloadUnknownAsset(t *testing.T) {
	f := newFixture(t)
	ref := catalog.AssetRef{
		WorkID:   id.NewWorkID(),
		FormatID: id.NewFormatID(),
		FileID:   id.NewFileID(),
		Revision: 1,
	}

	rec := f.do(t, http.MethodGet, downloadPath(ref), "user_1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
}

func TestDownloadAnonymousRedirectsToLogin(t *testing.T) {
	f := newFixture(t)
	price := types.USD(2500)
	ref := f.putAsset(&price)

	rec := f.do(t, http.MethodGet, downloadPath(ref), "", nil, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("status: got %d, want 302", rec.Code)
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad Location header: %v", err)
	}
	if loc.Query().Get("source") != ref.String() {
		t.Errorf("source param: got %q, want %q", loc.Query().Get("source"), ref.String())
	}
}

func TestDownloadPricedReturnsCheckout(t *testing.T) {
	f := newFixture(t)
	price := types.USD(2500)
	ref := f.putAsset(&price)

	rec := f.do(t, http.MethodGet, downloadPath(ref), "user_1", nil, nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status: got %d, want 402 (body %s)", rec.Code, rec.Body)
	}

	var resp struct {
		Checkout string `json:"checkout"`
		Intent   struct {
			ID string `json:"id"`
		} `json:"intent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Checkout == "" || resp.Intent.ID == "" {
		t.Errorf("incomplete payment response: %s", rec.Body)
	}
}

func TestCallbackCompletesAndGrants(t *testing.T) {
	f := newFixture(t)
	price := types.USD(2500)
	ref := f.putAsset(&price)

	// First request queues the intent.
	rec := f.do(t, http.MethodGet, downloadPath(ref), "user_1", nil, nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status: got %d, want 402", rec.Code)
	}

	var resp struct {
		Intent struct {
			ID string `json:"id"`
		} `json:"intent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}

	payload, _ := json.Marshal(map[string]string{
		"intent_id": resp.Intent.ID,
		"reference": "txn_1",
		"status":    "paid",
	})

	t.Run("unsigned callback rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/payments/callback", "", payload, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status: got %d, want 400", rec.Code)
		}
	})

	t.Run("signed callback accepted", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/payments/callback", "", payload, map[string]string{
			SignatureHeader: f.provider.Sign(payload),
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d, want 200 (body %s)", rec.Code, rec.Body)
		}
	})

	// The paid identity is now granted.
	rec = f.do(t, http.MethodGet, downloadPath(ref), "user_1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status after payment: got %d, want 200", rec.Code)
	}
}

func TestAbandonEndpoint(t *testing.T) {
	f := newFixture(t)
	price := types.USD(999)
	ref := f.putAsset(&price)

	rec := f.do(t, http.MethodGet, downloadPath(ref), "user_1", nil, nil)
	var resp struct {
		Intent struct {
			ID string `json:"id"`
		} `json:"intent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}

	rec = f.do(t, http.MethodPost, "/intents/"+resp.Intent.ID+"/abandon", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("abandon status: got %d (body %s)", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/intents/"+resp.Intent.ID, "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get intent status: got %d", rec.Code)
	}
	var intent struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &intent); err != nil {
		t.Fatalf("bad intent body: %v", err)
	}
	if intent.Status != "abandoned" {
		t.Errorf("status: got %s, want abandoned", intent.Status)
	}
}

func TestCatalogGroupsByFormat(t *testing.T) {
	f := newFixture(t)

	workID := id.NewWorkID()
	formatID := id.NewFormatID()
	for rev := 1; rev <= 2; rev++ {
		f.catalog.Put(&catalog.Asset{
			Ref: catalog.AssetRef{
				WorkID:   workID,
				FormatID: formatID,
				FileID:   id.NewFileID(),
				Revision: rev,
			},
			Approved:  true,
			Available: true,
		})
	}

	rec := f.do(t, http.MethodGet, "/works/"+workID.String()+"/catalog", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var resp struct {
		Formats map[string][]json.RawMessage `json:"formats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(resp.Formats[formatID.String()]) != 2 {
		t.Errorf("format bucket: got %d assets, want 2", len(resp.Formats[formatID.String()]))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cat := catalog.NewMemory()
	registry := prometheus.NewRegistry()

	pw := omp.New(memory.New(), cat,
		omp.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(registry))),
	)
	if err := pw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = pw.Stop() })

	server := New(pw, cat, "https://press.example.org/login", slog.Default(), WithMetrics(registry))

	ref := catalog.AssetRef{
		WorkID:   id.NewWorkID(),
		FormatID: id.NewFormatID(),
		FileID:   id.NewFileID(),
		Revision: 1,
	}
	cat.Put(&catalog.Asset{Ref: ref, Approved: true, Available: true})

	req := httptest.NewRequest(http.MethodGet, downloadPath(ref), nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status: got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "omp_access_granted 1") {
		t.Errorf("exposition missing grant counter:\n%s", rec.Body)
	}
}

func TestMetricsRouteAbsentByDefault(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
}
