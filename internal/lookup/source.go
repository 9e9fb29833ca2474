// Source resolution for register_lookup/loadcsv (spec.md §4.6): local
// path, http(s)://, dathere://<slug> (curated CDN namespace), and
// ckan://<resource_query> (CKAN-style catalogue) all resolve to a local
// file, which is then parsed as CSV.
package lookup

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/sync/semaphore"
)

// Loader resolves lookup sources into parsed Tables, bounding concurrent
// downloads with a semaphore the way the teacher bounds concurrent OHLCV
// backfills in internal/services/marketdata.
type Loader struct {
	Cache        *Cache
	CKANAPIBase  string
	DatahereBase string
	sem          *semaphore.Weighted
}

func NewLoader(cache *Cache, ckanAPIBase, datahereBase string, maxConcurrent int64) *Loader {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Loader{
		Cache:        cache,
		CKANAPIBase:  ckanAPIBase,
		DatahereBase: datahereBase,
		sem:          semaphore.NewWeighted(maxConcurrent),
	}
}

// Resolve turns source into a local file path ready to be opened and
// parsed as CSV. On any failure it returns an error; callers map that to
// "return nil" at the script boundary per spec.md §4.6.
func (l *Loader) Resolve(ctx context.Context, source string, maxAgeSeconds int64) (string, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return l.fetch(ctx, source, maxAgeSeconds)
	case strings.HasPrefix(source, "dathere://"):
		slug := strings.TrimPrefix(source, "dathere://")
		url := strings.TrimRight(l.DatahereBase, "/") + "/" + slug + ".csv"
		return l.fetch(ctx, url, maxAgeSeconds)
	case strings.HasPrefix(source, "ckan://"):
		query := strings.TrimPrefix(source, "ckan://")
		url, err := l.resolveCKAN(ctx, query)
		if err != nil {
			return "", err
		}
		return l.fetch(ctx, url, maxAgeSeconds)
	default:
		if _, err := os.Stat(source); err != nil {
			return "", fmt.Errorf("opening local lookup source %s: %w", source, err)
		}
		return source, nil
	}
}

func (l *Loader) fetch(ctx context.Context, url string, maxAgeSeconds int64) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer l.sem.Release(1)
	return l.Cache.Fetch(ctx, url, maxAgeSeconds)
}

// ckanResourceResponse is the slice of a CKAN `resource_show`/
// `package_search` response this engine actually needs.
type ckanResourceResponse struct {
	Success bool `json:"success"`
	Result  struct {
		URL string `json:"url"`
	} `json:"result"`
}

func (l *Loader) resolveCKAN(ctx context.Context, query string) (string, error) {
	if l.CKANAPIBase == "" {
		return "", fmt.Errorf("resolving ckan:// source: no --ckan-api configured")
	}
	apiURL := strings.TrimRight(l.CKANAPIBase, "/") + "/api/3/action/resource_show?id=" + query

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.Cache.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("querying ckan catalogue: %w", err)
	}
	defer resp.Body.Close()

	var parsed ckanResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parsing ckan catalogue response: %w", err)
	}
	if !parsed.Success || parsed.Result.URL == "" {
		return "", fmt.Errorf("ckan catalogue lookup for %q returned no resource", query)
	}
	return parsed.Result.URL, nil
}

// ParseCSV reads path as CSV and returns its headers and data rows.
func ParseCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	var rows [][]string
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// RegisterLookup implements register_lookup(name, source, max_age_seconds)
// (spec.md §4.6): resolves, parses, indexes by the first column, and
// returns the header sequence.
func (l *Loader) RegisterLookup(ctx context.Context, reg *Registry, name, source string, maxAgeSeconds int64) ([]string, error) {
	path, err := l.Resolve(ctx, source, maxAgeSeconds)
	if err != nil {
		return nil, err
	}
	headers, rows, err := ParseCSV(path)
	if err != nil {
		return nil, err
	}
	reg.PutTable(name, BuildTable(headers, rows, 0))
	return headers, nil
}

// LoadCSV implements loadcsv(name, path, key_column): local-only,
// user-chosen key column.
func (l *Loader) LoadCSV(reg *Registry, name, path string, keyColumn int) ([]string, error) {
	headers, rows, err := ParseCSV(path)
	if err != nil {
		return nil, err
	}
	reg.PutTable(name, BuildTable(headers, rows, keyColumn))
	return headers, nil
}
