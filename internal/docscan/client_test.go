package docscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeExtractsFields(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/analyze", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("document")
		require.NoError(t, err)
		require.Equal(t, "license.jpg", header.Filename)
		_ = json.NewEncoder(w).Encode(Fields{
			DocumentType:  "driving_license",
			HolderName:    "Asha Verma",
			LicenseNumber: "KA05-2020-0012345",
			ExpiryDate:    "2029-06-30",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 5*time.Second)
	fields, err := client.Analyze(context.Background(), "license.jpg", []byte("fake-image-bytes"))
	require.NoError(t, err)
	require.Equal(t, "Bearer test-key", gotAuth)
	require.Equal(t, "driving_license", fields.DocumentType)
	require.Equal(t, "KA05-2020-0012345", fields.LicenseNumber)
}

func TestAnalyzeSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0)
	_, err := client.Analyze(context.Background(), "vin.jpg", []byte("fake"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 502")
}

func TestNewClientHonoursConfiguredTimeout(t *testing.T) {
	require.Equal(t, 5*time.Second, NewClient("http://scan", "", 5*time.Second).httpClient.Timeout)
	require.Equal(t, 15*time.Second, NewClient("http://scan", "", 0).httpClient.Timeout)
}
