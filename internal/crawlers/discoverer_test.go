package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"小写主机和scheme", "HTTPS://WWW.NHS.UK/Start-For-Life/", "https://www.nhs.uk/Start-For-Life/", false},
		{"去掉默认端口", "https://example.org:443/a", "https://example.org/a", false},
		{"保留非默认端口", "http://example.org:8080/a", "http://example.org:8080/a", false},
		{"去掉片段", "https://example.org/a#section-2", "https://example.org/a", false},
		{"去掉跟踪参数并排序", "https://example.org/a?utm_source=x&b=2&fbclid=1&a=1", "https://example.org/a?a=1&b=2", false},
		{"只有跟踪参数", "https://example.org/a?utm_medium=email", "https://example.org/a", false},
		{"空路径补斜杠", "https://example.org", "https://example.org/", false},
		{"不支持的协议", "ftp://example.org/a", "", true},
		{"缺少主机", "https:///a", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsGloballyDenied(t *testing.T) {
	tests := []struct {
		link string
		want bool
	}{
		{"https://example.org/sitemap.xml", true},
		{"https://example.org/en/sitemap/", true},
		{"https://example.org/login", true},
		{"https://example.org/account/sign-in/", true},
		{"https://example.org/register?next=/a", true},
		{"https://example.org/news/page/3", true},
		{"https://example.org/news?page=2", true},
		{"https://example.org/English/Pages/default.aspx", true},
		{"https://example.org/nutrition/index.html", true},
		{"https://example.org/files/guide.pdf", true},
		{"https://example.org/img/photo.JPG", true},
		{"mailto:info@example.org", true},
		{"javascript:void(0)", true},
		{"https://example.org/baby/weaning/first-foods/", false},
		{"https://example.org/English/ages-stages/baby/Pages/Starting-Solid-Foods.aspx", false},
		{"https://example.org/registered-dietitian-advice", false},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			if got := IsGloballyDenied(tt.link); got != tt.want {
				t.Errorf("IsGloballyDenied(%q) = %v, want %v", tt.link, got, tt.want)
			}
		})
	}
}

func TestExtractLinks(t *testing.T) {
	page := `<html><head><base href="https://cdn.example.org/base/"></head><body>
		<a href="relative/one">1</a>
		<a href="/absolute/two">2</a>
		<a href="https://other.example.org/three">3</a>
		<a href="mailto:x@example.org">mail</a>
		<a href="  ">empty</a>
		<a>no href</a>
	</body></html>`

	links, err := ExtractLinks(page, "https://example.org/list")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn.example.org/base/relative/one",
		"https://cdn.example.org/absolute/two",
		"https://other.example.org/three",
	}, links)
}

type providerFunc func(models.FetchStrategy) Fetcher

func (p providerFunc) ForStrategy(s models.FetchStrategy) Fetcher { return p(s) }

func listingSource(t *testing.T, baseURL string) *models.Source {
	t.Helper()
	src := &models.Source{
		Name:             "test-source",
		Organization:     "Test Health Agency",
		BaseURL:          baseURL,
		Language:         "en",
		CategoryPaths:    []string{"/baby/", "/toddler/", "/broken/"},
		LinkAllowPattern: `/(baby|toddler)/[a-z-]+/?$`,
		LinkDenyPattern:  `/baby/videos`,
	}
	require.NoError(t, src.Compile())
	return src
}

func TestDiscoverer_DiscoverSource(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/baby/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/baby/weaning">weaning</a>
			<a href="/baby/first-foods#top">first foods</a>
			<a href="/baby/weaning?utm_source=nav">weaning again</a>
			<a href="/baby/videos">videos</a>
			<a href="/baby/">self</a>
			<a href="/about/team">about</a>
			<a href="/baby/sitemap">sitemap</a>
		</body></html>`)
	})
	mux.HandleFunc("/toddler/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/toddler/fussy-eating">fussy</a>
			<a href="/baby/weaning">dup across listings</a>
		</body></html>`)
	})
	mux.HandleFunc("/broken/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.MaxAttempts = 1
	httpFetcher := NewHTTPFetcher(cfg, nil)
	d := NewDiscoverer(providerFunc(func(models.FetchStrategy) Fetcher { return httpFetcher }), nil)

	src := listingSource(t, srv.URL)
	candidates := d.DiscoverSource(context.Background(), src)

	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		urls = append(urls, c.URL)
		assert.Same(t, src, c.Source)
		assert.False(t, c.DiscoveredAt.IsZero())
	}
	assert.Equal(t, []string{
		srv.URL + "/baby/weaning",
		srv.URL + "/baby/first-foods",
		srv.URL + "/toddler/fussy-eating",
	}, urls)
}

func TestDiscoverer_Robots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /baby/private\n")
	})
	mux.HandleFunc("/baby/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/baby/private">private</a><a href="/baby/public">public</a>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	httpFetcher := NewHTTPFetcher(testFetchConfig(), nil)
	d := NewDiscoverer(providerFunc(func(models.FetchStrategy) Fetcher { return httpFetcher }),
		NewRobotsChecker(srv.Client(), ""))

	src := listingSource(t, srv.URL)
	src.CategoryPaths = []string{"/baby/"}

	candidates := d.Discover(context.Background(), []*models.Source{src})
	require.Len(t, candidates, 1)
	assert.Equal(t, srv.URL+"/baby/public", candidates[0].URL)
}

func TestDiscoverer_CrawlDelay(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nCrawl-delay: 2\n")
	})
	mux.HandleFunc("/baby/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/baby/public">public</a>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	httpFetcher := NewHTTPFetcher(testFetchConfig(), nil)
	src := listingSource(t, srv.URL)
	src.CategoryPaths = []string{"/baby/"}

	withoutRobots := NewDiscoverer(providerFunc(func(models.FetchStrategy) Fetcher { return httpFetcher }), nil)
	assert.Zero(t, withoutRobots.CrawlDelay(src))

	d := NewDiscoverer(providerFunc(func(models.FetchStrategy) Fetcher { return httpFetcher }),
		NewRobotsChecker(srv.Client(), ""))
	d.Discover(context.Background(), []*models.Source{src})
	assert.Equal(t, 2*time.Second, d.CrawlDelay(src))
}

func TestDiscoverer_MergesSourcesInOrder(t *testing.T) {
	a := &stubFetcher{strategy: models.StrategyHTTP, body: `<a href="https://a.example.org/baby/one">1</a><a href="https://a.example.org/baby/two">2</a>`}
	d := NewDiscoverer(providerFunc(func(models.FetchStrategy) Fetcher { return a }), nil)

	first := listingSource(t, "https://a.example.org")
	first.CategoryPaths = []string{"/baby/"}
	second := listingSource(t, "https://a.example.org")
	second.Name = "second"
	second.CategoryPaths = []string{"/baby/"}

	candidates := d.Discover(context.Background(), []*models.Source{first, second})
	require.Len(t, candidates, 2)
	assert.Same(t, first, candidates[0].Source)
	assert.Equal(t, "https://a.example.org/baby/one", candidates[0].URL)
	assert.Equal(t, "https://a.example.org/baby/two", candidates[1].URL)
}

func TestDiscoverer_ListingRequests(t *testing.T) {
	browser := &stubFetcher{strategy: models.StrategyBrowser, body: `<html><body>
		<article><a href="https://a.example.org/baby/one">1</a></article>
		<article><a href="https://a.example.org/baby/two">2</a></article>
	</body></html>`}
	d := NewDiscoverer(providerFunc(func(models.FetchStrategy) Fetcher { return browser }), nil)

	src := listingSource(t, "https://a.example.org")
	src.Strategy = models.StrategyBrowser
	src.Language = "fr"

	candidates := d.DiscoverSource(context.Background(), src)
	assert.Len(t, candidates, 2)

	require.NotEmpty(t, browser.requests)
	for _, req := range browser.requests {
		assert.True(t, req.Listing, "分类页请求应标记为列表页: %s", req.URL)
		assert.Equal(t, "fr", req.Language)
	}
}
