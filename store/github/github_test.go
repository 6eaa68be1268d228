package github_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/recordset"
	"github.com/warp/billing-engine/store/github"
)

// fakeContentsAPI mimics the subset of the GitHub contents API the store
// uses: GET returns base64 content plus a sha, PUT validates the sha and
// bumps it.
type fakeContentsAPI struct {
	mu    sync.Mutex
	files map[string]fakeFile // path -> file
	auth  string              // expected Authorization header
	seq   int
}

type fakeFile struct {
	data []byte
	sha  string
}

func newFakeContentsAPI() *fakeContentsAPI {
	return &fakeContentsAPI{files: make(map[string]fakeFile)}
}

func (f *fakeContentsAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.auth != "" && r.Header.Get("Authorization") != f.auth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodGet:
			file, ok := f.files[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			// GitHub inserts newlines into the base64 payload.
			content := base64.StdEncoding.EncodeToString(file.data)
			wrapped := ""
			for len(content) > 60 {
				wrapped += content[:60] + "\n"
				content = content[60:]
			}
			wrapped += content + "\n"
			json.NewEncoder(w).Encode(map[string]string{"content": wrapped, "sha": file.sha})

		case http.MethodPut:
			var body struct {
				Content string `json:"content"`
				SHA     string `json:"sha"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			existing, exists := f.files[r.URL.Path]
			if exists && existing.sha != body.SHA {
				w.WriteHeader(http.StatusConflict)
				return
			}
			data, err := base64.StdEncoding.DecodeString(body.Content)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.seq++
			sha := fmt.Sprintf("sha-%d", f.seq)
			f.files[r.URL.Path] = fakeFile{data: data, sha: sha}
			status := http.StatusOK
			if !exists {
				status = http.StatusCreated
			}
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{"content": map[string]string{"sha": sha}})

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newStore(t *testing.T, fake *fakeContentsAPI) *github.Store {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return github.New(github.Options{
		Owner:   "acme",
		Repo:    "house-data",
		Token:   "secret",
		BaseURL: srv.URL,
	})
}

func TestReadSet_MissingFileIsEmptySet(t *testing.T) {
	st := newStore(t, newFakeContentsAPI())

	set, rev, err := st.ReadSet(context.Background(), "apartments")
	require.NoError(t, err)
	assert.Empty(t, set.Rows)
	assert.Empty(t, rev)
}

func TestWriteThenRead_RoundTrip(t *testing.T) {
	st := newStore(t, newFakeContentsAPI())
	ctx := context.Background()

	set := recordset.New("id", "name")
	set.Append(recordset.Row{"id": "1", "name": "Unit 1"})

	rev, err := st.WriteSet(ctx, "apartments", set, "")
	require.NoError(t, err)
	assert.NotEmpty(t, rev)

	back, backRev, err := st.ReadSet(ctx, "apartments")
	require.NoError(t, err)
	assert.Equal(t, rev, backRev)
	require.Equal(t, 1, back.Len())
	assert.Equal(t, "Unit 1", back.Rows[0].String("name"))
}

func TestWriteSet_StaleRevisionIsConflict(t *testing.T) {
	st := newStore(t, newFakeContentsAPI())
	ctx := context.Background()

	set := recordset.New("id", "name")
	rev, err := st.WriteSet(ctx, "apartments", set, "")
	require.NoError(t, err)

	// Second writer advances the file.
	_, err = st.WriteSet(ctx, "apartments", set, rev)
	require.NoError(t, err)

	// The first revision is now stale.
	_, err = st.WriteSet(ctx, "apartments", set, rev)
	assert.ErrorIs(t, err, billing.ErrRevisionConflict)
}

func TestStore_SendsBearerToken(t *testing.T) {
	fake := newFakeContentsAPI()
	fake.auth = "token secret"
	st := newStore(t, fake)

	_, _, err := st.ReadSet(context.Background(), "apartments")
	require.NoError(t, err, "request must carry the configured token")
}

func TestReadSet_UpstreamErrorIsPersistenceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	st := github.New(github.Options{Owner: "a", Repo: "b", BaseURL: srv.URL})

	_, _, err := st.ReadSet(context.Background(), "apartments")
	assert.ErrorIs(t, err, billing.ErrPersistenceFailure)
}
