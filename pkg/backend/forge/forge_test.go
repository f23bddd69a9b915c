package forge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pageserve/pkg/pages"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var testLoc = pages.Location{Owner: "alice", Name: "pages", Branch: "pages"}

// ForgeTestSuite tests the forge backend against a fake forge server.
type ForgeTestSuite struct {
	suite.Suite
	forge    *httptest.Server
	requests []string
	fail     bool // when set, the fake forge answers 500
}

// SetupTest runs before each test
func (s *ForgeTestSuite) SetupTest() {
	s.requests = nil
	s.fail = false
	s.forge = httptest.NewServer(http.HandlerFunc(s.handle))
}

// TearDownTest runs after each test
func (s *ForgeTestSuite) TearDownTest() {
	s.forge.Close()
}

func (s *ForgeTestSuite) handle(w http.ResponseWriter, r *http.Request) {
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)

	if s.fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch {
	case r.URL.Path == "/api/v1/repos/alice/pages/branches":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"pages"},{"name":"dev"},{"name":"main"}]`))
	case r.URL.Path == "/alice/pages/raw/branch/pages/index.html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		_, _ = w.Write([]byte("<html>hi</html>"))
	case r.URL.Path == "/alice/pages/raw/branch/pages/big.bin":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", "1048576")
		if r.Method == http.MethodGet {
			_, _ = w.Write(make([]byte, 1<<20))
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *ForgeTestSuite) backend(cfg Config) *Backend {
	cfg.URL = s.forge.URL
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	return New(cfg)
}

// TestFetchAsset tests a successful raw fetch
func (s *ForgeTestSuite) TestFetchAsset() {
	b := s.backend(Config{})

	asset, err := b.FetchAsset(context.Background(), testLoc, "index.html")
	s.Require().NoError(err)
	s.Equal([]byte("<html>hi</html>"), asset.Body)
	s.Equal("text/html", asset.Meta.ContentType)
	s.Equal(int64(15), asset.Meta.Size)
	s.Equal(pages.HashBytes(asset.Body), asset.Meta.Hash)
	s.Equal(2006, asset.Meta.LastModified.Year())
}

// TestFetchAssetNotFound tests 404 mapping
func (s *ForgeTestSuite) TestFetchAssetNotFound() {
	b := s.backend(Config{})

	var notFound pages.NotFoundError
	_, err := b.FetchAsset(context.Background(), testLoc, "missing.html")
	s.Require().ErrorAs(err, &notFound)
	s.Equal("missing.html", notFound.Path)
}

// TestFetchAssetUpstreamError tests 5xx mapping
func (s *ForgeTestSuite) TestFetchAssetUpstreamError() {
	s.fail = true
	b := s.backend(Config{})

	var upstreamErr pages.UpstreamError
	_, err := b.FetchAsset(context.Background(), testLoc, "index.html")
	s.Require().ErrorAs(err, &upstreamErr)
}

// TestStatAsset tests metadata via HEAD without a body transfer
func (s *ForgeTestSuite) TestStatAsset() {
	b := s.backend(Config{})

	meta, err := b.StatAsset(context.Background(), testLoc, "index.html")
	s.Require().NoError(err)
	s.Equal("text/html", meta.ContentType)
	s.Equal("index.html", meta.Path)

	s.Require().Len(s.requests, 1)
	s.True(strings.HasPrefix(s.requests[0], "HEAD "), "stat must use HEAD, got %s", s.requests[0])
}

// TestTooLargeRejectedBeforeDownload tests the size ceiling
func (s *ForgeTestSuite) TestTooLargeRejectedBeforeDownload() {
	b := s.backend(Config{MaxAssetSize: 1024})

	var tooLarge pages.TooLargeError
	_, err := b.StatAsset(context.Background(), testLoc, "big.bin")
	s.Require().ErrorAs(err, &tooLarge)
	s.Equal(int64(1048576), tooLarge.Size)
	s.Equal(int64(1024), tooLarge.Limit)

	_, err = b.FetchAsset(context.Background(), testLoc, "big.bin")
	s.Require().ErrorAs(err, &tooLarge)
}

// TestListBranches tests the branch listing API
func (s *ForgeTestSuite) TestListBranches() {
	b := s.backend(Config{})

	branches, err := b.ListBranches(context.Background(), "alice", "pages")
	s.Require().NoError(err)
	s.Equal([]string{"pages", "dev", "main"}, branches)
}

// TestListBranchesFiltered tests the allowed-branches restriction
func (s *ForgeTestSuite) TestListBranchesFiltered() {
	b := s.backend(Config{AllowedBranches: []string{"pages", "dev"}})

	branches, err := b.ListBranches(context.Background(), "alice", "pages")
	s.Require().NoError(err)
	s.Equal([]string{"pages", "dev"}, branches)
}

// TestListBranchesMemoized tests the short-lived branch memo
func (s *ForgeTestSuite) TestListBranchesMemoized() {
	b := s.backend(Config{})

	_, err := b.ListBranches(context.Background(), "alice", "pages")
	s.Require().NoError(err)
	_, err = b.ListBranches(context.Background(), "alice", "pages")
	s.Require().NoError(err)

	s.Len(s.requests, 1, "second listing within the memo window must not hit the forge")
}

// TestBranchNotAllowed tests that restricted branches answer not-found
func (s *ForgeTestSuite) TestBranchNotAllowed() {
	b := s.backend(Config{AllowedBranches: []string{"pages"}})

	var notFound pages.NotFoundError
	_, err := b.FetchAsset(context.Background(), pages.Location{Owner: "alice", Name: "pages", Branch: "evil"}, "index.html")
	s.Require().ErrorAs(err, &notFound)
	s.Empty(s.requests, "disallowed branches must not reach the forge")
}

// TestTokenSent tests the API token header
func (s *ForgeTestSuite) TestTokenSent() {
	var gotAuth string
	forge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer forge.Close()

	b := New(Config{URL: forge.URL, Token: "secret", RequestTimeout: 5 * time.Second})
	_, _ = b.FetchAsset(context.Background(), testLoc, "index.html")

	assert.Equal(s.T(), "token secret", gotAuth)
}

// TestForgeTestSuite runs the test suite
func TestForgeTestSuite(t *testing.T) {
	suite.Run(t, new(ForgeTestSuite))
}

func TestRawURLEscaping(t *testing.T) {
	b := New(Config{URL: "https://forge.test"})

	url := b.rawURL(pages.Location{Owner: "alice", Name: "my pages", Branch: "dev"}, "a b/c.txt")
	require.Equal(t, "https://forge.test/alice/my%20pages/raw/branch/dev/a%20b/c.txt", url)
}

func TestConnectionErrorIsUpstreamError(t *testing.T) {
	// Nothing listens here.
	b := New(Config{URL: "http://127.0.0.1:1", RequestTimeout: time.Second, RetryMax: 1})

	var upstreamErr pages.UpstreamError
	_, err := b.FetchAsset(context.Background(), testLoc, "index.html")
	require.ErrorAs(t, err, &upstreamErr)
}
