// Package pubmed searches PubMed through the NCBI E-utilities API.
package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"medrag/internal/domain"
)

const (
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	searchRetMax   = 100
	fetchBatchSize = 20
	minAbstractLen = 60
	maxIDLen       = 50
	untitled       = "No title"
)

type Config struct {
	BaseURL   string
	APIKeyEnv string
	Timeout   time.Duration
	// RequestsPerSecond defaults to the NCBI limit: 3 without a key, 10 with one.
	RequestsPerSecond float64
	Logger            *slog.Logger
}

// Client is safe for concurrent use; all requests share one rate limiter.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
		if key != "" {
			rps = 10
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: base,
		apiKey:  key,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.With("component", "pubmed"),
	}
}

func (c *Client) Name() string { return "pubmed" }

// Search returns up to maxResults articles whose abstract is long enough to be useful.
// Fetch failures for a batch are logged and the batch skipped.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.Document, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	term := RewriteQuery(query)
	if term == "" {
		return nil, nil
	}
	c.logger.Debug("searching", "term", term)

	ids, err := c.searchIDs(ctx, term)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		c.logger.Info("no articles found", "term", term)
		return nil, nil
	}

	var out []domain.Document
	for start := 0; start < len(ids) && len(out) < maxResults; start += fetchBatchSize {
		end := min(start+fetchBatchSize, len(ids))
		articles, err := c.fetch(ctx, ids[start:end])
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Warn("fetching article batch failed", "error", err)
			continue
		}
		for _, a := range articles {
			if d, ok := a.document(); ok {
				out = append(out, d)
				if len(out) >= maxResults {
					break
				}
			}
		}
	}
	c.logger.Info("articles retrieved", "term", term, "ids", len(ids), "documents", len(out))
	return out, nil
}

type searchResult struct {
	IDs []string `xml:"IdList>Id"`
}

func (c *Client) searchIDs(ctx context.Context, term string) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", fmt.Sprint(searchRetMax))
	params.Set("retmode", "xml")
	params.Set("sort", "relevance")

	var res searchResult
	if err := c.get(ctx, "esearch.fcgi", params, &res); err != nil {
		return nil, fmt.Errorf("pubmed search: %w", err)
	}
	return res.IDs, nil
}

type articleSet struct {
	Articles []article `xml:"PubmedArticle"`
}

type article struct {
	Title    innerText   `xml:"MedlineCitation>Article>ArticleTitle"`
	Abstract []innerText `xml:"MedlineCitation>Article>Abstract>AbstractText"`
}

// innerText captures the character data of an element including nested markup
// such as <i> or <sup>.
type innerText struct {
	Inner string `xml:",innerxml"`
}

func (t innerText) String() string {
	var b strings.Builder
	dec := xml.NewDecoder(strings.NewReader("<x>" + t.Inner + "</x>"))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
		}
	}
	return strings.TrimSpace(b.String())
}

func (a article) document() (domain.Document, bool) {
	parts := make([]string, 0, len(a.Abstract))
	for _, p := range a.Abstract {
		if s := p.String(); s != "" {
			parts = append(parts, s)
		}
	}
	abstract := strings.Join(parts, " ")
	if len(abstract) <= minAbstractLen {
		return domain.Document{}, false
	}
	title := a.Title.String()
	if title == "" {
		title = untitled
	}
	return domain.Document{
		ID:    truncateRunes(title, maxIDLen),
		Title: title,
		Text:  title + "\n\n" + abstract,
	}, true
}

func (c *Client) fetch(ctx context.Context, ids []string) ([]article, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	var set articleSet
	if err := c.get(ctx, "efetch.fcgi", params, &set); err != nil {
		return nil, err
	}
	return set.Articles, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", endpoint, err)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
