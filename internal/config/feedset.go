package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"feedwatch/internal/feed"
)

// FeedSet is the data-shaped configuration: which sources to poll and which
// topics count as interesting. It lives in a YAML file so it can be edited
// without a rebuild.
type FeedSet struct {
	Feeds     []feed.Source `yaml:"feeds"`
	Scraped   []feed.Source `yaml:"scraped"`
	Interests []string      `yaml:"interests"`
}

// LoadFeedSet parses the feed set from the YAML file at path.
func LoadFeedSet(path string) (FeedSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FeedSet{}, fmt.Errorf("read feed config %s: %w", path, err)
	}
	var set FeedSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return FeedSet{}, fmt.Errorf("parse feed config %s: %w", path, err)
	}
	return set, nil
}

// Sources returns every pollable source, syndication feeds first.
func (fs FeedSet) Sources() []feed.Source {
	out := make([]feed.Source, 0, len(fs.Feeds)+len(fs.Scraped))
	out = append(out, fs.Feeds...)
	out = append(out, fs.Scraped...)
	return out
}
