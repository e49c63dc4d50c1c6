//go:build e2e

// Tests against a running search service. Run with:
//
//	go test -v -tags=e2e -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"
)

func searcherURL() string {
	if v := os.Getenv("E2E_SEARCHER_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func getJSON(t *testing.T, client *http.Client, rawURL string, out any) int {
	t.Helper()
	resp, err := client.Get(rawURL)
	if err != nil {
		t.Skipf("search service unavailable: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decoding %s: %v (%s)", rawURL, err, body)
		}
	}
	return resp.StatusCode
}

func TestServiceHealth(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			if code := getJSON(t, client, searcherURL()+path, nil); code != http.StatusOK {
				t.Errorf("expected 200, got %d", code)
			}
		})
	}
}

func TestServiceSearchIsCached(t *testing.T) {
	client := &http.Client{Timeout: 10 * time.Second}
	params := url.Values{"q": {"gene expression regulation"}, "model": {"bm25"}, "limit": {"5"}}
	target := searcherURL() + "/api/v1/search?" + params.Encode()

	type response struct {
		Tokens  []string `json:"tokens"`
		Results []struct {
			DocID string  `json:"doc_id"`
			Score float64 `json:"score"`
		} `json:"results"`
		Cache string `json:"cache"`
	}
	var first, second response
	if code := getJSON(t, client, target, &first); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(first.Results) > 5 {
		t.Fatalf("limit ignored: %d results", len(first.Results))
	}
	for i := 1; i < len(first.Results); i++ {
		if first.Results[i].Score > first.Results[i-1].Score {
			t.Fatalf("results not sorted at %d", i)
		}
	}

	getJSON(t, client, target, &second)
	if second.Cache == "" {
		t.Log("second request was not served from cache; is caching disabled?")
	}
	if len(second.Results) != len(first.Results) {
		t.Errorf("cached result differs: %d vs %d", len(second.Results), len(first.Results))
	}
}

func TestServiceCacheStats(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	var stats map[string]any
	if code := getJSON(t, client, searcherURL()+"/api/v1/cache/stats", &stats); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if status, ok := stats["status"]; ok && status == "disabled" {
		t.Skip("cache is disabled")
	}
	for _, field := range []string{"stats", "total", "hit_rate"} {
		if _, ok := stats[field]; !ok {
			t.Errorf("missing expected field: %s", field)
		}
	}
}
