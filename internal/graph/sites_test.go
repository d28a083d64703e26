package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetSiteByPath(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(Site{ID: "contoso.sharepoint.com,abc,def", Name: "Engineering"})
	}))

	site, err := client.GetSiteByPath(context.Background(), "contoso.sharepoint.com", "/sites/engineering")
	require.NoError(t, err)
	assert.Equal(t, "/sites/contoso.sharepoint.com:/sites/engineering", gotPath)
	assert.Equal(t, "Engineering", site.Name)
}

func TestClient_GetSiteByURL(t *testing.T) {
	tests := []struct {
		name     string
		siteURL  string
		wantPath string
	}{
		{
			name:     "site collection URL",
			siteURL:  "https://contoso.sharepoint.com/sites/engineering",
			wantPath: "/sites/contoso.sharepoint.com:/sites/engineering",
		},
		{
			name:     "nested site URL",
			siteURL:  "https://contoso.sharepoint.com/sites/engineering/backend",
			wantPath: "/sites/contoso.sharepoint.com:/sites/engineering/backend",
		},
		{
			name:     "root site URL",
			siteURL:  "https://contoso.sharepoint.com/",
			wantPath: "/sites/contoso.sharepoint.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				_ = json.NewEncoder(w).Encode(Site{ID: "site-1"})
			}))

			_, err := client.GetSiteByURL(context.Background(), tt.siteURL)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, gotPath)
		})
	}
}

func TestClient_SearchSites(t *testing.T) {
	var queries []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("search"))
		if r.URL.Query().Get("page") == "2" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []Site{{ID: "site-2", DisplayName: "Engineering Wiki"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value":           []Site{{ID: "site-1", DisplayName: "Engineering"}},
			"@odata.nextLink": "http://" + r.Host + "/sites?search=engineering&page=2",
		})
	}))

	sites, err := client.SearchSites(context.Background(), "engineering")
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "site-1", sites[0].ID)
	assert.Equal(t, "Engineering Wiki", sites[1].DisplayName)
	assert.Equal(t, []string{"engineering", "engineering"}, queries)
}

func TestClient_GetSiteByURL_Invalid(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an invalid URL")
	}))

	_, err := client.GetSiteByURL(context.Background(), "not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing hostname")
}

func TestClient_GetSiteByPath_EmptyHostname(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an empty hostname")
	}))

	_, err := client.GetSiteByPath(context.Background(), "", "sites/engineering")
	require.Error(t, err)
}
