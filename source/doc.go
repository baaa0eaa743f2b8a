// Package source holds per-site extraction rules.
//
// Every news site is described by data, not code: a base URL, CSS selectors
// for list and article pages, and regular expressions for links, categories
// and the publish date. Sites are listed in a YAML file:
//
//	sources:
//	  - name: TVBS
//	    base_url: https://news.tvbs.com.tw/politics
//	    page_url_format: https://news.tvbs.com.tw/politics?page={page}
//	    list_selectors: [".news_list"]
//	    article_selectors: ["article", ".article_content"]
//	    date_pattern: "{date}"
//	    link_pattern: '\[([^\]]+)\]\((https://news\.tvbs\.com\.tw/politics/\d+)\)'
//
// Load compiles every entry up front, so a bad pattern stops a run before
// any page is fetched.
package source
