package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// GetSite fetches a site by its composite site ID.
func (c *Client) GetSite(ctx context.Context, siteID string) (*Site, error) {
	var site Site
	if err := c.getJSON(ctx, "/sites/"+url.PathEscape(siteID), nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// GetSiteByPath resolves a site from its hostname and server-relative path,
// e.g. ("contoso.sharepoint.com", "sites/engineering").
func (c *Client) GetSiteByPath(ctx context.Context, hostname, relativePath string) (*Site, error) {
	if hostname == "" {
		return nil, fmt.Errorf("hostname cannot be empty")
	}
	relativePath = strings.TrimPrefix(relativePath, "/")
	path := fmt.Sprintf("/sites/%s:/%s", url.PathEscape(hostname), relativePath)

	var site Site
	if err := c.getJSON(ctx, path, nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// GetSiteByURL resolves a site from its full browser URL,
// e.g. "https://contoso.sharepoint.com/sites/engineering".
func (c *Client) GetSiteByURL(ctx context.Context, siteURL string) (*Site, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid site URL %q: %w", siteURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid site URL %q: missing hostname", siteURL)
	}
	if strings.Trim(u.Path, "/") == "" {
		// Root site of the tenant host.
		return c.GetSite(ctx, u.Host)
	}
	return c.GetSiteByPath(ctx, u.Host, u.Path)
}

// SearchSites finds sites matching the query across the tenant.
func (c *Client) SearchSites(ctx context.Context, query string) ([]Site, error) {
	q := url.Values{}
	q.Set("search", query)

	var sites []Site
	err := c.listAll(ctx, "/sites?"+q.Encode(), func(raw json.RawMessage) error {
		var page []Site
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("failed to parse site list: %w", err)
		}
		sites = append(sites, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sites, nil
}

// ListDrives returns the document libraries of a site.
func (c *Client) ListDrives(ctx context.Context, siteID string) ([]Drive, error) {
	var drives []Drive
	err := c.listAll(ctx, "/sites/"+url.PathEscape(siteID)+"/drives", func(raw json.RawMessage) error {
		var page []Drive
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("failed to parse drive list: %w", err)
		}
		drives = append(drives, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drives, nil
}
