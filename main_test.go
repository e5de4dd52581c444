package main

import (
	"bonbon-radar/pkg/api"
	"bonbon-radar/pkg/models"
	"bonbon-radar/pkg/snapshot"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func seedSnapshot(t *testing.T) {
	t.Helper()
	seen := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	products := []models.Product{
		{
			ID:       "bonbondrop_1111111111",
			Name:     "ボンボンドロップシール いちご",
			Category: "sticker",
			Prices: []models.PriceObservation{{
				StoreID: "bonbondrop_official", StoreName: "BonbonDrop", Price: 660,
				InStock: false, Location: models.OnlineLocation, URL: "https://bonbondrop.example/a", LastUpdated: seen,
			}},
		},
		{
			ID:       "sanrio_2222222222",
			Name:     "ボンボンドロップシール キティ",
			Category: "sticker",
			Prices: []models.PriceObservation{{
				StoreID: "sanrio_official", StoreName: "Sanrio", Price: 550,
				InStock: true, Location: models.OnlineLocation, URL: "https://sanrio.example/b", LastUpdated: seen,
			}},
		},
	}
	posts := []models.SocialPost{
		{ID: "x_1", Type: models.PostTypeTwitter, ProductID: "x_1", Username: "@a", PostURL: "https://x.com/a/status/1", PostedAt: seen},
		{ID: "raffle_1", Type: models.PostTypeOther, ProductID: "raffle_1", Username: "抽選情報", PostURL: "https://shop.example/raffle", PostedAt: seen},
	}

	dir := t.TempDir()
	if err := snapshot.Write(dir, products, posts); err != nil {
		t.Fatal(err)
	}
	snapshotDir = dir
}

func TestProblemResponses(t *testing.T) {
	seedSnapshot(t)

	tests := []struct {
		name           string
		method         string
		target         string
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "Invalid Path - Product too deep",
			target:         "/products/a/b",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid path. Expected /products or /products/{id}",
		},
		{
			name:           "Unknown Product",
			target:         "/products/nope",
			expectedStatus: http.StatusNotFound,
			expectedDetail: "Product nope not found",
		},
		{
			name:           "Invalid inStock",
			target:         "/products?inStock=maybe",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: `invalid inStock value "maybe"`,
		},
		{
			name:           "Invalid Path - Missing products",
			target:         "/stores/sanrio_official",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid path. Expected /stores/{store}/products",
		},
		{
			name:           "Invalid Path - Wrong keyword",
			target:         "/stores/sanrio_official/items",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid path. Expected /stores/{store}/products",
		},
		{
			name:           "Unknown Store",
			target:         "/stores/unknown/products",
			expectedStatus: http.StatusNotFound,
			expectedDetail: "Store unknown not found in snapshot",
		},
		{
			name:           "Invalid Post Type",
			target:         "/sns?type=facebook",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: `Invalid type "facebook". Available: twitter, other`,
		},
		{
			name:           "Unknown Endpoint",
			target:         "/deals",
			expectedStatus: http.StatusNotFound,
			expectedDetail: "No such endpoint",
		},
		{
			name:           "Wrong Method",
			method:         http.MethodPost,
			target:         "/products",
			expectedStatus: http.StatusMethodNotAllowed,
			expectedDetail: "Use GET.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, tt.target, nil)
			rr := httptest.NewRecorder()

			http.HandlerFunc(rootHandler).ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v",
					status, tt.expectedStatus)
			}

			// Check Content-Type
			expectedContentType := "application/problem+json"
			if contentType := rr.Header().Get("Content-Type"); contentType != expectedContentType {
				t.Errorf("handler returned wrong content type: got %v want %v",
					contentType, expectedContentType)
			}

			// Check JSON Body
			var pd api.ProblemDetails
			if err := json.Unmarshal(rr.Body.Bytes(), &pd); err != nil {
				t.Fatalf("handler returned invalid JSON: %v. Body: %s", err, rr.Body.String())
			}

			if pd.Status != tt.expectedStatus {
				t.Errorf("JSON status mismatch: got %v want %v", pd.Status, tt.expectedStatus)
			}
			if pd.Type != "about:blank" {
				t.Errorf("JSON type mismatch: got %v want about:blank", pd.Type)
			}
			if !strings.Contains(pd.Detail, tt.expectedDetail) {
				t.Errorf("JSON detail mismatch: got %q, want substring %q", pd.Detail, tt.expectedDetail)
			}
			if pd.Instance != req.URL.Path {
				t.Errorf("JSON instance mismatch: got %v want %v", pd.Instance, req.URL.Path)
			}
		})
	}
}

func TestMissingSnapshot(t *testing.T) {
	snapshotDir = t.TempDir()

	for _, target := range []string{"/products", "/products/sanrio_2222222222", "/stores/sanrio_official/products", "/sns"} {
		rr := httptest.NewRecorder()
		http.HandlerFunc(rootHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: got status %d want %d", target, rr.Code, http.StatusServiceUnavailable)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
			t.Errorf("%s: got content type %q", target, ct)
		}
	}
}

func getJSON(t *testing.T, target string, v any) {
	t.Helper()
	rr := httptest.NewRecorder()
	http.HandlerFunc(rootHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("%s: got status %d, body %s", target, rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("%s: got content type %q", target, ct)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("%s: invalid JSON: %v", target, err)
	}
}

func productIDs(products []models.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestProductEndpoints(t *testing.T) {
	seedSnapshot(t)

	tests := []struct {
		target string
		want   []string
	}{
		{"/products", []string{"bonbondrop_1111111111", "sanrio_2222222222"}},
		{"/products/", []string{"bonbondrop_1111111111", "sanrio_2222222222"}},
		{"/products?inStock=true", []string{"sanrio_2222222222"}},
		{"/products?inStock=false", []string{"bonbondrop_1111111111"}},
		{"/stores/sanrio_official/products", []string{"sanrio_2222222222"}},
		{"/stores/bonbondrop_official/products?inStock=true", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var got []models.Product
			getJSON(t, tt.target, &got)
			ids := productIDs(got)
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v want %v", ids, tt.want)
			}
		})
	}

	var product models.Product
	getJSON(t, "/products/sanrio_2222222222", &product)
	if product.Name != "ボンボンドロップシール キティ" {
		t.Errorf("got name %q", product.Name)
	}
	if len(product.Prices) != 1 || product.Prices[0].Price != 550 {
		t.Errorf("unexpected prices: %+v", product.Prices)
	}
}

func TestSnsEndpoint(t *testing.T) {
	seedSnapshot(t)

	tests := []struct {
		target string
		want   []string
	}{
		{"/sns", []string{"x_1", "raffle_1"}},
		{"/sns?type=twitter", []string{"x_1"}},
		{"/sns?type=other", []string{"raffle_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var got []models.SocialPost
			getJSON(t, tt.target, &got)
			var ids []string
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v want %v", ids, tt.want)
			}
		})
	}
}

func TestDocsRoot(t *testing.T) {
	rr := httptest.NewRecorder()
	http.HandlerFunc(rootHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("got content type %q", ct)
	}
}
