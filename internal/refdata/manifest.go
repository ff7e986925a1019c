package refdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cephalon-sofis/wfbuddy/internal/transport"
)

const (
	DefaultBaseURL = "http://content.warframe.com/MobileExport"
	cacheKeyPrefix = "refdata-"
	cacheTimeout   = 0 // export files only change with game updates and are refreshed explicitly
)

// CacheService defines a persistent cache service.
type CacheService interface {
	Get(string) ([]byte, bool)
	Set(string, []byte, time.Duration)
}

// table holds all entities of one type.
type table struct {
	names []string // in manifest order
	items map[string]json.RawMessage
}

// Manifest is a [Lookup] backed by the export files of the manifest server.
//
// Export files are downloaded on first use and stored in the cache.
// Loaded tables are kept in memory for the lifetime of the Manifest.
type Manifest struct {
	baseURL    string
	cache      CacheService
	httpClient *http.Client
	sfg        *singleflight.Group

	mu      sync.Mutex
	tables  map[EntityType]*table
	systems []System
}

var _ Lookup = (*Manifest)(nil)

// NewManifest returns a new Manifest.
//
// When no httpClient (nil) is provided it will use the default client.
// When baseURL is empty it will use [DefaultBaseURL].
func NewManifest(cache CacheService, httpClient *http.Client, baseURL string) *Manifest {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	m := &Manifest{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		cache:      cache,
		httpClient: httpClient,
		sfg:        new(singleflight.Group),
		tables:     make(map[EntityType]*table),
	}
	return m
}

// Fetch returns an entity.
func (m *Manifest) Fetch(ctx context.Context, et EntityType, uniqueName string) (Entity, error) {
	t, err := m.table(ctx, et)
	if err != nil {
		return Entity{}, err
	}
	raw, ok := t.items[uniqueName]
	if !ok {
		return Entity{}, fmt.Errorf("%s %s: %w", et, uniqueName, ErrNotFound)
	}
	return NewEntity(et, uniqueName, raw), nil
}

// All returns all entities of a type in manifest order.
func (m *Manifest) All(ctx context.Context, et EntityType) ([]Entity, error) {
	t, err := m.table(ctx, et)
	if err != nil {
		return nil, err
	}
	entities := make([]Entity, 0, len(t.names))
	for _, n := range t.names {
		entities = append(entities, NewEntity(et, n, t.items[n]))
	}
	return entities, nil
}

// RegionsBySystem returns all regions grouped by system in the order
// in which the systems first appear in the manifest.
func (m *Manifest) RegionsBySystem(ctx context.Context) ([]System, error) {
	m.mu.Lock()
	systems := m.systems
	m.mu.Unlock()
	if systems != nil {
		return systems, nil
	}
	regions, err := m.All(ctx, Regions)
	if err != nil {
		return nil, err
	}
	systems, err = groupRegions(regions)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.systems = systems
	m.mu.Unlock()
	return systems, nil
}

func groupRegions(regions []Entity) ([]System, error) {
	systems := make([]System, 0)
	lookup := make(map[string]int)
	for _, e := range regions {
		var r region
		if err := e.Decode(&r); err != nil {
			return nil, err
		}
		i, ok := lookup[r.SystemName]
		if !ok {
			systems = append(systems, System{Name: r.SystemName, Index: r.SystemIndex})
			i = len(systems) - 1
			lookup[r.SystemName] = i
		}
		systems[i].Regions = append(systems[i].Regions, e.UniqueName)
	}
	return systems, nil
}

// ImageURL returns the URL for the image of an item.
func (m *Manifest) ImageURL(ctx context.Context, uniqueName string) (string, error) {
	e, err := m.Fetch(ctx, ManifestItems, uniqueName)
	if err != nil {
		return "", err
	}
	var x struct {
		TextureLocation string `json:"textureLocation"`
	}
	if err := e.Decode(&x); err != nil {
		return "", err
	}
	if x.TextureLocation == "" {
		return "", fmt.Errorf("%s has no texture: %w", uniqueName, ErrNotFound)
	}
	url := m.baseURL + x.TextureLocation
	return strings.ReplaceAll(url, `\`, "/"), nil
}

// Refresh downloads the export file for a type again and replaces the cached data.
func (m *Manifest) Refresh(ctx context.Context, et EntityType) error {
	if !et.IsValid() {
		return fmt.Errorf("refresh: invalid entity type: %d", et)
	}
	t, err := m.download(ctx, et)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[et] = t
	if et == Regions {
		m.systems = nil
	}
	return nil
}

func (m *Manifest) table(ctx context.Context, et EntityType) (*table, error) {
	if !et.IsValid() {
		return nil, fmt.Errorf("invalid entity type: %d", et)
	}
	m.mu.Lock()
	t, ok := m.tables[et]
	m.mu.Unlock()
	if ok {
		return t, nil
	}
	x, err, _ := m.sfg.Do(et.String(), func() (any, error) {
		key := cacheKey(et)
		if dat, ok := m.cache.Get(key); ok {
			t, err := parseTable(dat)
			if err == nil {
				return t, nil
			}
			slog.Warn("Discarding invalid cached reference data", "type", et, "error", err)
		}
		return m.download(ctx, et)
	})
	if err != nil {
		return nil, err
	}
	t = x.(*table)
	m.mu.Lock()
	m.tables[et] = t
	m.mu.Unlock()
	return t, nil
}

// download fetches an export file from the manifest server and stores it in the cache.
func (m *Manifest) download(ctx context.Context, et EntityType) (*table, error) {
	url := m.baseURL + "/Manifest/" + et.FileName()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	slog.Info("Downloading reference data", "type", et, "url", url)
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", et.FileName(), err)
	}
	defer resp.Body.Close()
	dat, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", et.FileName(), err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download %s: %w", et.FileName(), transport.HTTPError{StatusCode: resp.StatusCode, Body: string(dat)})
	}
	entries, err := extractEntries(escapeControlChars(dat))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", et.FileName(), err)
	}
	normalized, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	t, err := parseTable(normalized)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", et.FileName(), err)
	}
	m.cache.Set(cacheKey(et), normalized, cacheTimeout)
	slog.Info("Reference data updated", "type", et, "count", len(t.names))
	return t, nil
}

func cacheKey(et EntityType) string {
	return cacheKeyPrefix + et.FileName()
}

// extractEntries returns the list of entries of an export file.
// Export files are objects with a single key holding a list of entries.
// When there are several keys it will use the last one.
func extractEntries(dat []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(dat))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var last json.RawMessage
	var found bool
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		if err := dec.Decode(&last); err != nil {
			return nil, err
		}
		found = true
	}
	if !found {
		return nil, fmt.Errorf("export file has no entries")
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(last, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseTable(dat []byte) (*table, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(dat, &entries); err != nil {
		return nil, err
	}
	t := &table{
		names: make([]string, 0, len(entries)),
		items: make(map[string]json.RawMessage, len(entries)),
	}
	for _, raw := range entries {
		var x struct {
			UniqueName string `json:"uniqueName"`
		}
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, err
		}
		if x.UniqueName == "" {
			slog.Debug("Ignoring reference data entry without unique name")
			continue
		}
		if _, ok := t.items[x.UniqueName]; !ok {
			t.names = append(t.names, x.UniqueName)
		}
		t.items[x.UniqueName] = raw
	}
	return t, nil
}

// escapeControlChars escapes raw control characters inside JSON strings,
// which the export files contain but are not valid JSON.
func escapeControlChars(dat []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(dat))
	var inString, escaped bool
	for _, c := range dat {
		switch {
		case !inString:
			if c == '"' {
				inString = true
			}
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = false
		case c < 0x20:
			switch c {
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				fmt.Fprintf(&b, `\u%04x`, c)
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.Bytes()
}
