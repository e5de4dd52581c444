package snapshot

import (
	"bonbon-radar/pkg/models"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	ProductsFile = "products.json"
	PostsFile    = "sns.json"
)

// Write replaces both snapshot files in dir. Both are staged as temporary
// siblings before either is renamed into place; a staging failure leaves
// the previous pair untouched.
func Write(dir string, products []models.Product, posts []models.SocialPost) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if products == nil {
		products = []models.Product{}
	}
	if posts == nil {
		posts = []models.SocialPost{}
	}

	files := []struct {
		path string
		v    any
	}{
		{filepath.Join(dir, ProductsFile), products},
		{filepath.Join(dir, PostsFile), posts},
	}

	staged := make([]string, 0, len(files))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()
	for _, f := range files {
		tmp, err := stage(f.path, f.v)
		if err != nil {
			return err
		}
		staged = append(staged, tmp)
	}

	for i, f := range files {
		if err := os.Rename(staged[i], f.path); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
	}
	return nil
}

// stage encodes v into a temporary file next to path and returns its name.
func stage(path string, v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return tmp.Name(), nil
}

func ReadProducts(dir string) ([]models.Product, error) {
	var products []models.Product
	if err := readJSON(filepath.Join(dir, ProductsFile), &products); err != nil {
		return nil, err
	}
	return products, nil
}

func ReadPosts(dir string) ([]models.SocialPost, error) {
	var posts []models.SocialPost
	if err := readJSON(filepath.Join(dir, PostsFile), &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
