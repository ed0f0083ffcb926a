package feeds

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/ini.v1"
)

// FileStore persists the feed list to a flat INI file, one section per
// feed keyed by its ID, preserving registration order.
type FileStore struct {
	path string
}

// NewFileStore returns a Store backed by the INI file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() ([]*Feed, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, nil
	}

	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, s.path)
	if err != nil {
		return nil, fmt.Errorf("parse feeds file %s: %w", s.path, err)
	}

	var out []*Feed
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		addedAt, _ := time.Parse(time.RFC3339, sec.Key("added_at").String())
		out = append(out, &Feed{
			ID:        sec.Name(),
			Name:      sec.Key("name").String(),
			URL:       sec.Key("url").String(),
			Title:     sec.Key("title").String(),
			Category:  sec.Key("category").String(),
			Enabled:   sec.Key("enabled").MustBool(true),
			AddedAt:   addedAt,
			Validated: sec.Key("validated").MustBool(true),
		})
	}
	return out, nil
}

func (s *FileStore) Save(list []*Feed) error {
	f := ini.Empty()
	for _, feed := range list {
		sec, err := f.NewSection(feed.ID)
		if err != nil {
			return fmt.Errorf("create section for feed %s: %w", feed.ID, err)
		}
		sec.Key("name").SetValue(feed.Name)
		sec.Key("url").SetValue(feed.URL)
		sec.Key("title").SetValue(feed.Title)
		sec.Key("category").SetValue(feed.Category)
		sec.Key("enabled").SetValue(fmt.Sprintf("%t", feed.Enabled))
		sec.Key("added_at").SetValue(feed.AddedAt.Format(time.RFC3339))
		sec.Key("validated").SetValue(fmt.Sprintf("%t", feed.Validated))
	}
	if err := f.SaveTo(s.path); err != nil {
		return fmt.Errorf("save feeds file %s: %w", s.path, err)
	}
	return nil
}
