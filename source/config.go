// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/poiesic/newsindex/core"
)

const (
	// DatePlaceholder is substituted with the target date in DatePattern.
	DatePlaceholder = "{date}"
	// PagePlaceholder is substituted with the page number in PageURLFormat.
	PagePlaceholder = "{page}"

	// DefaultDateLayout renders target dates as YYYY/MM/DD.
	DefaultDateLayout = core.DateLayout
)

// SourceConfig describes how to extract articles from one news site.
// It is plain data; New validates it and compiles the patterns.
type SourceConfig struct {
	// Name tags every article from this site (the source_site value).
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	// PageURLFormat builds list page URLs. {page} is replaced with the page
	// number. Empty means BaseURL + "&p={page}".
	PageURLFormat string `yaml:"page_url_format"`

	ListSelectors    []string `yaml:"list_selectors"`
	ArticleSelectors []string `yaml:"article_selectors"`

	// DatePattern is a regular expression template confirming an article
	// page belongs to the target date. It must contain {date}.
	DatePattern string `yaml:"date_pattern"`
	// DateLayout is the Go time layout used to render {date}.
	DateLayout string `yaml:"date_layout"`

	// CategoryPattern captures the category label in group 1.
	CategoryPattern string `yaml:"category_pattern"`
	// LinkPattern captures the title in group 1 and the URL in group 2.
	// It is matched case-insensitively.
	LinkPattern    string `yaml:"link_pattern"`
	TargetCategory string `yaml:"target_category"`
}

// Normalize trims whitespace and fills defaults.
func (c *SourceConfig) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.PageURLFormat = strings.TrimSpace(c.PageURLFormat)
	c.TargetCategory = strings.TrimSpace(c.TargetCategory)
	if c.DateLayout == "" {
		c.DateLayout = DefaultDateLayout
	}
	if c.DatePattern == "" {
		c.DatePattern = DatePlaceholder
	}
}

// Validate checks the configuration without compiling it.
func (c *SourceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if err := core.ValidateSourceURL(c.BaseURL); err != nil {
		return fmt.Errorf("%w: %s: base_url: %w", ErrInvalidConfig, c.Name, err)
	}
	if c.PageURLFormat != "" && !strings.Contains(c.PageURLFormat, PagePlaceholder) {
		return fmt.Errorf("%w: %s: page_url_format must contain %s", ErrInvalidConfig, c.Name, PagePlaceholder)
	}
	if !strings.Contains(c.DatePattern, DatePlaceholder) {
		return fmt.Errorf("%w: %s: date_pattern must contain %s", ErrInvalidConfig, c.Name, DatePlaceholder)
	}
	if strings.TrimSpace(c.LinkPattern) == "" {
		return fmt.Errorf("%w: %s: link_pattern is required", ErrInvalidConfig, c.Name)
	}
	if c.TargetCategory != "" && strings.TrimSpace(c.CategoryPattern) == "" {
		return fmt.Errorf("%w: %s: target_category needs a category_pattern", ErrInvalidConfig, c.Name)
	}
	return nil
}

// Source is a validated, compiled SourceConfig. It is safe for concurrent use.
type Source struct {
	config   SourceConfig
	base     *url.URL
	link     *regexp.Regexp
	category *regexp.Regexp
}

// New normalizes, validates and compiles a configuration.
// Malformed patterns are configuration errors.
func New(config SourceConfig) (*Source, error) {
	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ListSelectors = clean(config.ListSelectors)
	config.ArticleSelectors = clean(config.ArticleSelectors)

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: base_url: %w", ErrInvalidConfig, config.Name, err)
	}

	link, err := regexp.Compile("(?i)" + config.LinkPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: link_pattern: %w", ErrInvalidConfig, config.Name, err)
	}
	if n := link.NumSubexp(); n != 2 {
		return nil, fmt.Errorf("%w: %s: link_pattern has %d capture groups, want 2 (title, url)", ErrInvalidConfig, config.Name, n)
	}

	s := &Source{config: config, base: base, link: link}

	if config.CategoryPattern != "" {
		s.category, err = regexp.Compile(config.CategoryPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: category_pattern: %w", ErrInvalidConfig, config.Name, err)
		}
		if s.category.NumSubexp() < 1 {
			return nil, fmt.Errorf("%w: %s: category_pattern needs a capture group", ErrInvalidConfig, config.Name)
		}
	}

	// A sample date proves the template compiles once substituted.
	if _, err := s.DateRegexp(time.Date(2006, 1, 2, 0, 0, 0, 0, time.UTC)); err != nil {
		return nil, fmt.Errorf("%w: %s: date_pattern: %w", ErrInvalidConfig, config.Name, err)
	}
	return s, nil
}

// Config returns a copy of the normalized configuration.
func (s *Source) Config() SourceConfig {
	return s.config
}

// Name returns the site tag.
func (s *Source) Name() string {
	return s.config.Name
}

func (s *Source) ListSelectors() []string {
	return s.config.ListSelectors
}

func (s *Source) ArticleSelectors() []string {
	return s.config.ArticleSelectors
}

func (s *Source) TargetCategory() string {
	return s.config.TargetCategory
}

// PageURL returns the URL of list page n (1-based).
func (s *Source) PageURL(n int) string {
	format := s.config.PageURLFormat
	if format == "" {
		format = s.config.BaseURL + "&p=" + PagePlaceholder
	}
	return strings.ReplaceAll(format, PagePlaceholder, fmt.Sprint(n))
}

// FormatDate renders a target date with the configured layout.
func (s *Source) FormatDate(date time.Time) string {
	return date.Format(s.config.DateLayout)
}

// DateRegexp compiles the date pattern for a target date.
// The rendered date is matched literally.
func (s *Source) DateRegexp(date time.Time) (*regexp.Regexp, error) {
	expr := strings.ReplaceAll(s.config.DatePattern, DatePlaceholder, regexp.QuoteMeta(s.FormatDate(date)))
	return regexp.Compile(expr)
}

// Link is a (title, URL) candidate found on a list page.
type Link struct {
	Title string
	URL   string
	// Block is the list page text between this link and the next one.
	Block string
}

// Links returns the link candidates of a list page in document order.
// URLs are resolved against the base URL.
func (s *Source) Links(content string) []Link {
	matches := s.link.FindAllStringSubmatchIndex(content, -1)
	links := make([]Link, 0, len(matches))
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		href := strings.TrimSpace(content[m[4]:m[5]])
		resolved, ok := s.ResolveURL(href)
		if !ok {
			continue
		}
		links = append(links, Link{
			Title: strings.TrimSpace(content[m[2]:m[3]]),
			URL:   resolved,
			Block: content[m[0]:end],
		})
	}
	return links
}

// Category returns the category captured from a list page block.
func (s *Source) Category(block string) (string, bool) {
	if s.category == nil {
		return "", false
	}
	m := s.category.FindStringSubmatch(block)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// Accepts reports whether a candidate block passes the target category filter.
func (s *Source) Accepts(block string) bool {
	if s.config.TargetCategory == "" {
		return true
	}
	category, ok := s.Category(block)
	return ok && category == s.config.TargetCategory
}

// ResolveURL makes href absolute against the base URL.
func (s *Source) ResolveURL(href string) (string, bool) {
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := s.base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

func clean(selectors []string) []string {
	out := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			out = append(out, sel)
		}
	}
	return out
}
