package main

import (
	"bonbon-radar/pkg/api"
	"bonbon-radar/pkg/models"
	"bonbon-radar/pkg/snapshot"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"
	"github.com/spf13/cobra"
)

//go:embed api.yaml
var apiSpec []byte

// snapshotDir is where handlers read products.json and sns.json from.
var snapshotDir = "data"

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	snapshotDir = cfg.OutputDir
	port := flagPort

	http.HandleFunc("/", rootHandler)

	ip := GetOutboundIP()
	if ip != nil {
		fmt.Printf("Local Network URL: http://%s:%s\n", ip.String(), port)
	} else {
		fmt.Println("Could not determine local IP address.")
	}
	fmt.Printf("Access URL: http://localhost:%s\n", port)
	fmt.Printf("API Docs: http://localhost:%s/\n", port)
	slog.Info("serving snapshot", "dir", snapshotDir)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           nil,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-cmd.Context().Done()
		server.Close()
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/products" || strings.HasPrefix(r.URL.Path, "/products/"):
		productHandler(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/stores/"):
		storeHandler(w, r)
		return
	case r.URL.Path == "/sns":
		snsHandler(w, r)
		return
	case r.URL.Path != "/":
		api.WriteNotFound(w, "No such endpoint", r.URL.Path)
		return
	}

	// Serve Scalar docs on root path
	html, err := scalargo.NewV2(
		scalargo.WithSpecBytes(apiSpec),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Bonbon Radar API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func GetOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		addrs, _ := net.InterfaceAddrs()
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					return ipnet.IP
				}
			}
		}
		return nil
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP
}

func productHandler(w http.ResponseWriter, r *http.Request) {
	// Path expected: /products or /products/{id}
	parts := strings.Split(strings.TrimSuffix(r.URL.Path, "/"), "/")

	if len(parts) > 3 || parts[1] != "products" {
		api.WriteBadRequest(w, "Invalid path. Expected /products or /products/{id}", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet, r.URL.Path)
		return
	}

	products, ok := loadProducts(w, r)
	if !ok {
		return
	}

	if len(parts) == 3 {
		product, err := findProduct(products, parts[2])
		if err != nil {
			api.WriteNotFound(w, fmt.Sprintf("Product %s not found", parts[2]), r.URL.Path)
			return
		}
		writeJSON(w, r, product)
		return
	}

	products, err := filterStock(products, r.URL.Query().Get("inStock"))
	if err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, r, products)
}

func storeHandler(w http.ResponseWriter, r *http.Request) {
	// Path expected: /stores/{store}/products
	parts := strings.Split(strings.TrimSuffix(r.URL.Path, "/"), "/")
	// parts[0] = ""
	// parts[1] = "stores"
	// parts[2] = {store}
	// parts[3] = "products"

	if len(parts) != 4 || parts[3] != "products" || parts[2] == "" {
		api.WriteBadRequest(w, "Invalid path. Expected /stores/{store}/products", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet, r.URL.Path)
		return
	}

	products, ok := loadProducts(w, r)
	if !ok {
		return
	}

	store := parts[2]
	var matched []models.Product
	known := map[string]bool{}
	for _, p := range products {
		for _, obs := range p.Prices {
			known[obs.StoreID] = true
			if obs.StoreID == store {
				matched = append(matched, p)
				break
			}
		}
	}
	if !known[store] {
		api.WriteNotFound(w, fmt.Sprintf("Store %s not found in snapshot", store), r.URL.Path)
		return
	}

	matched, err := filterStock(matched, r.URL.Query().Get("inStock"))
	if err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, r, matched)
}

func snsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet, r.URL.Path)
		return
	}

	postType := r.URL.Query().Get("type")
	if postType != "" && postType != models.PostTypeTwitter && postType != models.PostTypeOther {
		api.WriteBadRequest(w, fmt.Sprintf("Invalid type %q. Available: twitter, other", postType), r.URL.Path)
		return
	}

	posts, err := snapshot.ReadPosts(snapshotDir)
	if err != nil {
		writeSnapshotError(w, r, err)
		return
	}

	filtered := make([]models.SocialPost, 0, len(posts))
	for _, p := range posts {
		if postType == "" || p.Type == postType {
			filtered = append(filtered, p)
		}
	}
	writeJSON(w, r, filtered)
}

func loadProducts(w http.ResponseWriter, r *http.Request) ([]models.Product, bool) {
	products, err := snapshot.ReadProducts(snapshotDir)
	if err != nil {
		writeSnapshotError(w, r, err)
		return nil, false
	}
	return products, true
}

func findProduct(products []models.Product, id string) (models.Product, error) {
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Product{}, models.ErrProductNotFound
}

func filterStock(products []models.Product, raw string) ([]models.Product, error) {
	out := make([]models.Product, 0, len(products))
	if raw == "" {
		return append(out, products...), nil
	}
	want, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid inStock value %q, use true or false", raw)
	}
	for _, p := range products {
		if len(p.Prices) > 0 && p.Prices[0].InStock == want {
			out = append(out, p)
		}
	}
	return out, nil
}

func writeSnapshotError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, os.ErrNotExist) {
		api.WriteServiceUnavailable(w, "No snapshot yet. Run update first.", r.URL.Path)
		return
	}
	slog.Error("reading snapshot failed", "err", err)
	api.WriteInternalServerError(w, err, r.URL.Path)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "path", r.URL.Path, "err", err)
	}
}
