package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/janhstrom/mindreminder-sub000/internal/events"
)

var errSchemaNotRegistered = errors.New("schema not registered under subject")

// SchemaRegistryClient resolves the Schema Registry id of each micro-action event type's
// JSON schema. Ids are cached per subject; event types sharing a topic share a subject.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client

	mu  sync.Mutex
	ids map[string]int
}

// NewSchemaRegistryClient constructs a client with sane defaults.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		ids: make(map[string]int),
	}
}

// SchemaIDFor returns the id of the schema eventType is published under, registering the
// schema on first use. A subject whose latest version is a different schema gets ours
// registered as a new version rather than silently reusing the old id.
func (c *SchemaRegistryClient) SchemaIDFor(ctx context.Context, eventType string) (int, error) {
	route, ok := events.RouteFor(eventType)
	if !ok {
		return 0, fmt.Errorf("no route for event_type=%s", eventType)
	}
	schema, ok := schemaFor(eventType)
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", eventType)
	}

	c.mu.Lock()
	id, cached := c.ids[route.SchemaSubject]
	c.mu.Unlock()
	if cached {
		return id, nil
	}

	id, err := c.lookup(ctx, route.SchemaSubject, schema)
	if errors.Is(err, errSchemaNotRegistered) {
		id, err = c.register(ctx, route.SchemaSubject, schema)
	}
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.ids[route.SchemaSubject] = id
	c.mu.Unlock()
	return id, nil
}

// lookup asks whether schema is already registered under subject.
func (c *SchemaRegistryClient) lookup(ctx context.Context, subject, schema string) (int, error) {
	id, status, err := c.post(ctx, "/subjects/"+url.PathEscape(subject), schema)
	if status == http.StatusNotFound {
		return 0, errSchemaNotRegistered
	}
	return id, err
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject, schema string) (int, error) {
	id, _, err := c.post(ctx, "/subjects/"+url.PathEscape(subject)+"/versions", schema)
	return id, err
}

func (c *SchemaRegistryClient) post(ctx context.Context, path, schema string) (int, int, error) {
	body, err := json.Marshal(map[string]any{
		"schemaType": "JSON",
		"schema":     schema,
	})
	if err != nil {
		return 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return 0, resp.StatusCode, fmt.Errorf("schema registry %s: %d %s", path, resp.StatusCode, data)
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, resp.StatusCode, err
	}
	return payload.ID, resp.StatusCode, nil
}
