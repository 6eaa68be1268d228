/*
Package github implements the RecordStore against the GitHub contents API.

PURPOSE:
  The production flat-file database is a directory of CSV files in a Git
  repository, read and written through api.github.com. Each file's blob SHA
  doubles as the optimistic-concurrency revision: a PUT carrying a stale
  SHA is rejected by GitHub, which this adapter surfaces as
  billing.ErrRevisionConflict.

WIRE DETAILS:
  GET  /repos/{owner}/{repo}/contents/{dir}/{set}.csv?ref={branch}
       -> {content: base64 (with embedded newlines), sha}
       404 means the set does not exist yet: empty set, empty revision.
  PUT  /repos/{owner}/{repo}/contents/{dir}/{set}.csv
       {message, content: base64, branch, sha?}
       409/422 on SHA mismatch.

AUTH:
  An opaque bearer credential ("token <...>" header). Nothing beyond
  passing it through is in scope.
*/
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/metrics"
	"github.com/warp/billing-engine/recordset"
)

const backend = "github"

// Options configures the repository acting as the record store.
type Options struct {
	Owner   string
	Repo    string
	Branch  string // default "main"
	DataDir string // default "data"
	Token   string

	// BaseURL overrides the API endpoint; tests point it at a fake.
	BaseURL string

	// HTTPClient overrides the default client (15s timeout).
	HTTPClient *http.Client
}

type Store struct {
	opts   Options
	client *http.Client
}

func New(opts Options) *Store {
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.github.com"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Store{opts: opts, client: client}
}

type contentsResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (s *Store) contentsURL(name string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s/%s.csv",
		s.opts.BaseURL, s.opts.Owner, s.opts.Repo, s.opts.DataDir, name)
}

// ReadSet fetches and decodes one record set. 404 yields an empty set.
func (s *Store) ReadSet(ctx context.Context, name string) (recordset.Set, billing.Revision, error) {
	metrics.StoreReadsTotal.WithLabelValues(backend, name).Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.contentsURL(name)+"?ref="+s.opts.Branch, nil)
	if err != nil {
		return recordset.Set{}, "", fmt.Errorf("%w: %v", billing.ErrPersistenceFailure, err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return recordset.Set{}, "", fmt.Errorf("%w: GET %s: %v", billing.ErrPersistenceFailure, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return recordset.Set{}, "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return recordset.Set{}, "", fmt.Errorf("%w: GET %s: status %d", billing.ErrPersistenceFailure, name, resp.StatusCode)
	}

	var body contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return recordset.Set{}, "", fmt.Errorf("%w: GET %s: %v", billing.ErrPersistenceFailure, name, err)
	}

	// GitHub wraps the base64 payload in newlines.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
	if err != nil {
		return recordset.Set{}, "", fmt.Errorf("%w: GET %s: bad content encoding: %v", billing.ErrPersistenceFailure, name, err)
	}

	set, err := recordset.Unmarshal(raw)
	if err != nil {
		return recordset.Set{}, "", fmt.Errorf("%w: %s: %v", billing.ErrPersistenceFailure, name, err)
	}
	return set, billing.Revision(body.SHA), nil
}

// WriteSet serializes and uploads one record set, guarded by the SHA read
// earlier. An empty revision creates the file.
func (s *Store) WriteSet(ctx context.Context, name string, set recordset.Set, rev billing.Revision) (billing.Revision, error) {
	metrics.StoreWritesTotal.WithLabelValues(backend, name).Inc()

	data, err := recordset.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", billing.ErrPersistenceFailure, name, err)
	}

	payload := putRequest{
		Message: fmt.Sprintf("Update %s (%d rows)", name, set.Len()),
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  s.opts.Branch,
		SHA:     string(rev),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", billing.ErrPersistenceFailure, name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.contentsURL(name), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", billing.ErrPersistenceFailure, err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: PUT %s: %v", billing.ErrPersistenceFailure, name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity:
		metrics.StoreConflictsTotal.WithLabelValues(backend).Inc()
		return "", &billing.RevisionConflictError{Set: name, Revision: string(rev)}
	default:
		return "", fmt.Errorf("%w: PUT %s: status %d", billing.ErrPersistenceFailure, name, resp.StatusCode)
	}

	var result putResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: PUT %s: %v", billing.ErrPersistenceFailure, name, err)
	}
	return billing.Revision(result.Content.SHA), nil
}

func (s *Store) setHeaders(req *http.Request) {
	if s.opts.Token != "" {
		req.Header.Set("Authorization", "token "+s.opts.Token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
}
