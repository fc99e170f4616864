// Package weather scrapes today's forecast (summary, high and low) from
// a forecast page for the status overlay and /api/weather.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/nerrad567/homesense-core/internal/state"
)

const (
	fetchTimeout = 10 * time.Second
	maxPageSize  = 2 << 20

	// browserUserAgent is sent because the forecast site rejects unknown agents.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

var (
	// ErrForecastNotFound is returned when the page has no forecast block.
	ErrForecastNotFound = errors.New("weather: forecast not found")

	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("weather: unexpected status")
)

// bracketed matches the "[+2]" day-over-day delta after a temperature.
var bracketed = regexp.MustCompile(`\[.*\]`)

// Client fetches the forecast page.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a client for the forecast page at url.
func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch downloads and parses today's forecast.
func (c *Client) Fetch(ctx context.Context) (state.Weather, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return state.Weather{}, fmt.Errorf("building weather request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return state.Weather{}, fmt.Errorf("fetching weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return state.Weather{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	w, err := Parse(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return state.Weather{}, err
	}
	w.UpdatedAt = time.Now()
	return w, nil
}

// Parse extracts today's forecast from the page: the first cell of the
// div.forecastCity table, with its p.pict summary and li.high / li.low
// temperatures.
func Parse(r io.Reader) (state.Weather, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return state.Weather{}, fmt.Errorf("parsing weather page: %w", err)
	}

	city := find(doc, func(n *html.Node) bool { return isElement(n, "div") && hasClass(n, "forecastCity") })
	if city == nil {
		return state.Weather{}, ErrForecastNotFound
	}
	today := find(city, func(n *html.Node) bool { return isElement(n, "td") })
	if today == nil {
		return state.Weather{}, ErrForecastNotFound
	}

	summary := find(today, func(n *html.Node) bool { return isElement(n, "p") && hasClass(n, "pict") })
	high := find(today, func(n *html.Node) bool { return isElement(n, "li") && hasClass(n, "high") })
	low := find(today, func(n *html.Node) bool { return isElement(n, "li") && hasClass(n, "low") })
	if summary == nil || high == nil || low == nil {
		return state.Weather{}, ErrForecastNotFound
	}

	return state.Weather{
		Text: text(summary),
		High: temperature(text(high)),
		Low:  temperature(text(low)),
	}, nil
}

func temperature(s string) string {
	s = bracketed.ReplaceAllString(s, "")
	if s == "" {
		return "--"
	}
	return s
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// find returns the first node below root (depth first) matching match.
func find(root *html.Node, match func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if n := find(c, match); n != nil {
			return n
		}
	}
	return nil
}

// text concatenates the trimmed text nodes under n.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
