package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/hashgraph-online/flora-price-oracle/proof"
)

// maxResponseBytes caps adapter response bodies. Price APIs return a few
// hundred bytes; anything larger is broken or hostile.
const maxResponseBytes = 1 << 20

// httpAdapter samples a JSON price API and resolves a dotted path inside
// the response down to a finite number.
type httpAdapter struct {
	entry       ManifestEntry
	fingerprint string
	client      *http.Client
}

func newHTTPAdapter(entry ManifestEntry) (*httpAdapter, error) {
	fp, err := entry.ComputeFingerprint()
	if err != nil {
		return nil, err
	}
	return &httpAdapter{
		entry:       entry,
		fingerprint: fp,
		client:      &http.Client{},
	}, nil
}

func (a *httpAdapter) ID() string {
	return a.entry.ID
}

func (a *httpAdapter) Fingerprint() string {
	return a.fingerprint
}

func (a *httpAdapter) Fetch(ctx context.Context) (*proof.AdapterRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.entry.URL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "adapter %s has a malformed url", a.entry.ID)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "adapter %s request failed", a.entry.ID)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).WithField("adapter", a.entry.ID).Error("Failed to close response body")
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("adapter %s returned status %d", a.entry.ID, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "adapter %s response could not be read", a.entry.ID)
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrapf(err, "adapter %s returned malformed JSON", a.entry.ID)
	}
	price, err := resolvePrice(doc, a.entry.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "adapter %s", a.entry.ID)
	}
	return record(a.entry, price)
}

// resolvePrice walks a dotted key path inside a decoded JSON document and
// returns the number found at its end.
func resolvePrice(doc interface{}, path string) (float64, error) {
	cur := doc
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			obj, ok := cur.(map[string]interface{})
			if !ok {
				return 0, errors.Errorf("path segment %q does not address an object", part)
			}
			cur, ok = obj[part]
			if !ok {
				return 0, errors.Errorf("response is missing %q", part)
			}
		}
	}
	price, ok := cur.(float64)
	if !ok {
		return 0, errors.Errorf("price at path %q is not a number", path)
	}
	return price, nil
}
