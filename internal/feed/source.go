package feed

// Source identifies one pollable content source. Syndication sources carry
// just a URL; scraped sources describe how to lift post links out of a blog
// index page that has no native feed.
type Source struct {
	URL string `yaml:"url" json:"url,omitempty"`

	Title        string `yaml:"title" json:"title,omitempty"`
	Description  string `yaml:"description" json:"description,omitempty"`
	BlogURL      string `yaml:"blogUrl" json:"blogUrl,omitempty"`
	LinkSelector string `yaml:"linkSelector" json:"linkSelector,omitempty"`
	BaseURL      string `yaml:"baseUrl" json:"baseUrl,omitempty"`
}

// Scraped reports whether the source is a scraped blog page rather than a
// native syndication feed.
func (s Source) Scraped() bool {
	return s.BlogURL != ""
}

// Key returns the URL used as the source's identity in the state store.
func (s Source) Key() string {
	if s.Scraped() {
		return s.BlogURL
	}
	return s.URL
}

// CandidatePost is one post lifted from a source in the current cycle.
// Content holds the feed-supplied snippet, when the source carries one.
type CandidatePost struct {
	Title   string
	Link    string
	Content string
}
