package acquisition

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/raster"
	"github.com/geolumen/nightlights/internal/storage"
)

func testPolygon() domain.Polygon {
	return domain.Polygon{
		Exterior: domain.Ring{
			{Lon: 0, Lat: 0},
			{Lon: 1, Lat: 0},
			{Lon: 1, Lat: 1},
			{Lon: 0, Lat: 1},
		},
	}
}

func encodedRaster(t *testing.T) []byte {
	t.Helper()
	src := raster.Synthetic(domain.BoundingBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, 4, 4)
	path := filepath.Join(t.TempDir(), "export.tif")
	if err := raster.EncodeGeoTIFF(src, path); err != nil {
		t.Fatalf("encode: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func writeCredentials(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("test-token"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompositeClientExportSuccess(t *testing.T) {
	payload := encodedRaster(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/composites/export" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "image/tiff")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	store := storage.NewMemoryStore(storage.Buckets{})
	client, err := NewCompositeClient(CompositeClientConfig{
		BaseURL:         server.URL,
		CredentialsFile: writeCredentials(t),
		Timeout:         2 * time.Second,
		MaxRetries:      1,
	}, store)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ref, err := client.ExportForArea(context.Background(), 5, testPolygon(), 2022, time.April)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if want := "rasters/5/2022_04/viirs_ntl.tif"; ref != want {
		t.Fatalf("ref = %q, want %q", ref, want)
	}
	if _, ok := store.Get(storage.BucketRasters, "5/2022_04/viirs_ntl.tif"); !ok {
		t.Fatal("raster not staged in object storage")
	}
}

func TestCompositeClientRetriesOnServerError(t *testing.T) {
	payload := encodedRaster(t)
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	store := storage.NewMemoryStore(storage.Buckets{})
	client, err := NewCompositeClient(CompositeClientConfig{
		BaseURL:         server.URL,
		CredentialsFile: writeCredentials(t),
		Timeout:         2 * time.Second,
		MaxRetries:      2,
	}, store)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.ExportForArea(context.Background(), 1, testPolygon(), 2022, time.April); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected at least 2 calls, got %d", calls)
	}
}

func TestCompositeClientNoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad geometry"}`))
	}))
	defer server.Close()

	store := storage.NewMemoryStore(storage.Buckets{})
	client, err := NewCompositeClient(CompositeClientConfig{
		BaseURL:         server.URL,
		CredentialsFile: writeCredentials(t),
		Timeout:         2 * time.Second,
		MaxRetries:      3,
	}, store)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.ExportForArea(context.Background(), 1, testPolygon(), 2022, time.April); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("client errors must not retry, got %d calls", got)
	}
}

func TestCompositeClientRejectsUndecodablePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not a raster</html>"))
	}))
	defer server.Close()

	store := storage.NewMemoryStore(storage.Buckets{})
	client, err := NewCompositeClient(CompositeClientConfig{
		BaseURL:         server.URL,
		CredentialsFile: writeCredentials(t),
		Timeout:         2 * time.Second,
		MaxRetries:      1,
	}, store)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.ExportForArea(context.Background(), 1, testPolygon(), 2022, time.April)
	if !errors.Is(err, ErrExportFailed) {
		t.Fatalf("err = %v, want ErrExportFailed", err)
	}
	if objects, _ := store.List(context.Background(), "", storage.BucketRasters); len(objects) != 0 {
		t.Fatal("undecodable payload must not be staged")
	}
}

func TestCompositeClientUnavailableWithoutCredentials(t *testing.T) {
	store := storage.NewMemoryStore(storage.Buckets{})
	client, err := NewCompositeClient(CompositeClientConfig{BaseURL: "https://example.com"}, store)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ExportForArea(context.Background(), 1, testPolygon(), 2022, time.April); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestSyntheticClientStagesDecodableRaster(t *testing.T) {
	store := storage.NewMemoryStore(storage.Buckets{})
	client := NewSyntheticClient(store)

	ref, err := client.ExportForArea(context.Background(), 8, testPolygon(), 2023, time.November)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if want := "rasters/8/2023_11/viirs_ntl.tif"; ref != want {
		t.Fatalf("ref = %q, want %q", ref, want)
	}

	data, ok := store.Get(storage.BucketRasters, "8/2023_11/viirs_ntl.tif")
	if !ok {
		t.Fatal("raster not staged")
	}
	path := filepath.Join(t.TempDir(), "staged.tif")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	decoded, err := raster.DecodeGeoTIFF(path)
	if err != nil {
		t.Fatalf("staged raster not decodable: %v", err)
	}
	if decoded.MaxValue() <= 0 {
		t.Fatal("synthetic raster has no lit pixels")
	}
}

func TestSyntheticClientRejectsInvalidGeometry(t *testing.T) {
	store := storage.NewMemoryStore(storage.Buckets{})
	client := NewSyntheticClient(store)
	_, err := client.ExportForArea(context.Background(), 1, domain.Polygon{}, 2023, time.January)
	if !errors.Is(err, domain.ErrInvalidGeometry) {
		t.Fatalf("err = %v, want ErrInvalidGeometry", err)
	}
}
