// Package boe fetches consolidated law text from the official gazette and
// extracts individual articles.
package boe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/internal/ports"
)

const defaultBaseURL = "https://www.boe.es"

// headingExpr matches consolidated-text article headings such as
// "Artículo 5. Del derecho de reunión." or "Artículo 23 bis. Plazos."
var headingExpr = regexp.MustCompile(`^Art[íi]culo\s+([0-9]+(?:\s+(?:bis|ter|quater|quinquies))?)\.\s*(.*)$`)

// Source reads canonical articles from the gazette's consolidated act pages.
type Source struct {
	baseURL string
	client  *http.Client
}

var _ ports.CanonicalSource = (*Source)(nil)

// NewSource wires an HTTP client; a nil client gets a 20s timeout default.
func NewSource(baseURL string, client *http.Client) *Source {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Source{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

// FetchArticles downloads the consolidated act identified by boeID and
// returns every article found in it.
func (s *Source) FetchArticles(ctx context.Context, boeID string) ([]domain.CanonicalArticle, error) {
	doc, err := s.fetchDocument(ctx, s.actURL(boeID))
	if err != nil {
		return nil, fmt.Errorf("act %s: %w", boeID, err)
	}

	articles := extractArticles(doc)
	if len(articles) == 0 {
		return nil, fmt.Errorf("act %s: no articles found in document", boeID)
	}

	return articles, nil
}

// FetchArticleContent returns a single article from a fresh fetch of the act.
func (s *Source) FetchArticleContent(ctx context.Context, boeID, articleNumber string) (domain.CanonicalArticle, error) {
	articles, err := s.FetchArticles(ctx, boeID)
	if err != nil {
		return domain.CanonicalArticle{}, err
	}
	for _, art := range articles {
		if art.Number == articleNumber {
			return art, nil
		}
	}
	return domain.CanonicalArticle{}, fmt.Errorf("act %s: article %s not present", boeID, articleNumber)
}

func (s *Source) actURL(boeID string) string {
	query := url.Values{}
	query.Set("id", boeID)
	return s.baseURL + "/buscar/act.php?" + query.Encode()
}

func (s *Source) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ArticlesReconciler/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gazette returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// extractArticles walks the consolidated text top to bottom. An article
// heading opens a new article; every following paragraph belongs to it until
// the next heading.
func extractArticles(doc *goquery.Document) []domain.CanonicalArticle {
	var (
		articles []domain.CanonicalArticle
		current  *domain.CanonicalArticle
		body     []string
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.Join(body, "\n")
		articles = append(articles, *current)
		current = nil
		body = nil
	}

	doc.Find("h5.articulo, p.articulo, p.parrafo, p.parrafo_2").Each(func(i int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}

		if match := headingExpr.FindStringSubmatch(text); match != nil {
			flush()
			current = &domain.CanonicalArticle{
				Number: normalizeNumber(match[1]),
				Title:  strings.TrimSpace(match[2]),
			}
			return
		}

		if current != nil {
			body = append(body, text)
		}
	})
	flush()

	return articles
}

// normalizeNumber collapses internal whitespace so "5  bis" keys the same as
// "5 bis" on the stored side.
func normalizeNumber(number string) string {
	return strings.Join(strings.Fields(number), " ")
}
