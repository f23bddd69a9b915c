package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pageserve/pkg/backend/cache"
	"pageserve/pkg/backend/memory"
	"pageserve/pkg/cachestore"
	"pageserve/pkg/pages"
	"pageserve/pkg/resolver"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"
)

// ServerTestSuite tests the HTTP front-end over an in-memory backend
// wrapped by the cache decorator, the same chain production uses with
// the forge backend.
type ServerTestSuite struct {
	suite.Suite
	server  *PagesServer
	backend *memory.Backend
}

// SetupTest runs before each test
func (s *ServerTestSuite) SetupTest() {
	s.backend = memory.New()
	s.backend.Put(pages.Location{Owner: "alice", Name: "pages", Branch: "pages"}, "index.html", []byte("hi"))
	s.backend.Put(pages.Location{Owner: "alice", Name: "pages", Branch: "pages"}, "docs/index.html", []byte("docs"))
	s.backend.Put(pages.Location{Owner: "alice", Name: "site", Branch: "dev"}, "index.html", []byte("dev site"))

	res := resolver.New("example.com", map[string]pages.Location{
		"alice.dev": {Owner: "alice", Name: "pages", Branch: "pages"},
		"gone.dev":  {Owner: "ghost", Name: "pages", Branch: "pages"},
	})

	cached := cache.New(s.backend, cachestore.NewMemoryStore(), cache.Options{})
	s.server = NewPagesServer(cached, res, "test-pages", "test-v1.0.0")
	s.server.setupRoutes()
}

func (s *ServerTestSuite) request(host, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = host
	rec := httptest.NewRecorder()
	s.server.echo.ServeHTTP(rec, req)
	return rec
}

// TestSubdirectoryForm tests /owner/... on the base domain
func (s *ServerTestSuite) TestSubdirectoryForm() {
	rec := s.request("example.com", "/alice/index.html")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("hi", rec.Body.String())
	s.Contains(rec.Header().Get("Content-Type"), "text/html")
}

// TestSubdomainForm tests page.owner.<base> hosts
func (s *ServerTestSuite) TestSubdomainForm() {
	rec := s.request("pages.alice.example.com", "/index.html")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("hi", rec.Body.String())
}

// TestCustomDomain tests the alias table
func (s *ServerTestSuite) TestCustomDomain() {
	rec := s.request("alice.dev", "/index.html")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("hi", rec.Body.String())
}

// TestBranchSuffix tests the page:branch path segment
func (s *ServerTestSuite) TestBranchSuffix() {
	rec := s.request("example.com", "/alice/site:dev/index.html")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("dev site", rec.Body.String())
}

// TestRootServesIndex tests the index fallback at the site root
func (s *ServerTestSuite) TestRootServesIndex() {
	rec := s.request("alice.dev", "/")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("hi", rec.Body.String())
}

// TestDirectoryIndexFallback tests the index fallback for directories
func (s *ServerTestSuite) TestDirectoryIndexFallback() {
	rec := s.request("alice.dev", "/docs")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("docs", rec.Body.String())
}

// TestNotFound tests the 404 mapping
func (s *ServerTestSuite) TestNotFound() {
	rec := s.request("alice.dev", "/missing.html")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Contains(rec.Body.String(), "page not found")
}

// TestDanglingAlias tests that a dangling alias surfaces as not-found
func (s *ServerTestSuite) TestDanglingAlias() {
	rec := s.request("gone.dev", "/index.html")
	s.Equal(http.StatusNotFound, rec.Code)
}

// TestMalformedHost tests the 400 mapping for unresolvable hosts
func (s *ServerTestSuite) TestMalformedHost() {
	rec := s.request("a.b.c.d.example.com", "/index.html")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "malformed request")
}

// TestTraversalRejected tests that traversal never reaches a backend
func (s *ServerTestSuite) TestTraversalRejected() {
	rec := s.request("alice.dev", "/../secret")
	// Echo may normalize the path itself; either way the request must
	// not succeed.
	s.NotEqual(http.StatusOK, rec.Code)
}

// TestETagNotModified tests conditional requests
func (s *ServerTestSuite) TestETagNotModified() {
	first := s.request("alice.dev", "/index.html")
	s.Equal(http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	s.NotEmpty(etag)
	s.True(strings.Contains(etag, pages.HashBytes([]byte("hi"))))

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Host = "alice.dev"
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	s.server.echo.ServeHTTP(rec, req)
	s.Equal(http.StatusNotModified, rec.Code)
}

// TestHealth tests the health endpoint
func (s *ServerTestSuite) TestHealth() {
	rec := s.request("example.com", "/_api/v1/healthz")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "test-pages")
	s.Contains(rec.Body.String(), "test-v1.0.0")
}

// TestListBranches tests the branch listing endpoint
func (s *ServerTestSuite) TestListBranches() {
	rec := s.request("example.com", "/_api/v1/pages/alice/pages/branches")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"branches":["pages"]`)

	rec = s.request("example.com", "/_api/v1/pages/nobody/pages/branches")
	s.Equal(http.StatusNotFound, rec.Code)
}

// TestInvalidate tests the webhook invalidation endpoint
func (s *ServerTestSuite) TestInvalidate() {
	// Warm the cache, then change upstream content behind it.
	rec := s.request("alice.dev", "/index.html")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("hi", rec.Body.String())

	s.backend.Put(pages.Location{Owner: "alice", Name: "pages", Branch: "pages"}, "index.html", []byte("new"))

	// Still cached.
	rec = s.request("alice.dev", "/index.html")
	s.Equal("hi", rec.Body.String())

	body := strings.NewReader(`{"owner":"alice","page":"pages","branch":"pages"}`)
	req := httptest.NewRequest(http.MethodPost, "/_api/v1/invalidate", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	post := httptest.NewRecorder()
	s.server.echo.ServeHTTP(post, req)
	s.Equal(http.StatusOK, post.Code)

	// The next read reflects the new upstream content.
	rec = s.request("alice.dev", "/index.html")
	s.Equal("new", rec.Body.String())
}

// TestInvalidateRequiresOwner tests webhook validation
func (s *ServerTestSuite) TestInvalidateRequiresOwner() {
	req := httptest.NewRequest(http.MethodPost, "/_api/v1/invalidate", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.server.echo.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

// TestServerTestSuite runs the test suite
func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
