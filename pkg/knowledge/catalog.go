package knowledge

import (
	_ "embed"
	"os"
	"strings"

	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var defaultTopics []byte

var ErrInvalidCatalog = goerr.New("invalid topic catalog")

// Catalog is the immutable seed configuration of all topics, in display order
type Catalog struct {
	topics []*model.Topic
	index  map[model.TopicID]*model.Topic
}

type catalogFile struct {
	Topics []*model.Topic `yaml:"topics"`
}

// Default returns the catalog bundled with the binary
func Default() (*Catalog, error) {
	return Parse(defaultTopics)
}

// Load reads a catalog from a YAML file. An empty path yields the bundled catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read topic catalog", goerr.V("path", path))
	}

	catalog, err := Parse(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load topic catalog", goerr.V("path", path))
	}
	return catalog, nil
}

// Parse decodes and validates catalog YAML
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse topic catalog")
	}

	if len(file.Topics) == 0 {
		return nil, goerr.Wrap(ErrInvalidCatalog, "no topics defined")
	}

	c := &Catalog{
		topics: file.Topics,
		index:  make(map[model.TopicID]*model.Topic, len(file.Topics)),
	}

	for _, t := range file.Topics {
		if err := normalize(t); err != nil {
			return nil, err
		}
		if _, dup := c.index[t.ID]; dup {
			return nil, goerr.Wrap(ErrInvalidCatalog, "duplicated topic id", goerr.V("topic", t.ID))
		}
		c.index[t.ID] = t
	}

	return c, nil
}

func normalize(t *model.Topic) error {
	if t.ID == "" {
		return goerr.Wrap(ErrInvalidCatalog, "topic id is empty", goerr.V("name", t.Name))
	}
	if t.Name == "" {
		t.Name = string(t.ID)
	}
	t.SystemInstruction = strings.TrimSpace(t.SystemInstruction)

	triggers := make(map[string]struct{}, len(t.Keywords))
	for i := range t.Keywords {
		kw := &t.Keywords[i]
		if kw.Trigger == "" {
			return goerr.Wrap(ErrInvalidCatalog, "keyword trigger is empty", goerr.V("topic", t.ID))
		}
		// queries are lowercased before matching, so an uppercase trigger could never hit
		if kw.Trigger != strings.ToLower(kw.Trigger) {
			return goerr.Wrap(ErrInvalidCatalog, "keyword trigger must be lowercase",
				goerr.V("topic", t.ID), goerr.V("trigger", kw.Trigger))
		}
		if _, dup := triggers[kw.Trigger]; dup {
			return goerr.Wrap(ErrInvalidCatalog, "duplicated keyword trigger",
				goerr.V("topic", t.ID), goerr.V("trigger", kw.Trigger))
		}
		triggers[kw.Trigger] = struct{}{}

		kw.Answer = strings.TrimSpace(kw.Answer)
		if kw.Answer == "" {
			return goerr.Wrap(ErrInvalidCatalog, "keyword answer is empty",
				goerr.V("topic", t.ID), goerr.V("trigger", kw.Trigger))
		}
	}

	facilities := make(map[string]struct{}, len(t.Facilities))
	for _, f := range t.Facilities {
		if f == nil || f.Name == "" {
			return goerr.Wrap(ErrInvalidCatalog, "facility name is empty", goerr.V("topic", t.ID))
		}
		if _, dup := facilities[f.Name]; dup {
			return goerr.Wrap(ErrInvalidCatalog, "duplicated facility",
				goerr.V("topic", t.ID), goerr.V("facility", f.Name))
		}
		facilities[f.Name] = struct{}{}

		if len(f.Specialties) == 0 {
			return goerr.Wrap(ErrInvalidCatalog, "facility has no specialty",
				goerr.V("topic", t.ID), goerr.V("facility", f.Name))
		}
	}

	return nil
}

// Topics returns all topics in display order
func (c *Catalog) Topics() []*model.Topic {
	return c.topics
}

// First returns the topic shown when a session starts
func (c *Catalog) First() *model.Topic {
	return c.topics[0]
}

// Get looks up a topic by id
func (c *Catalog) Get(id model.TopicID) (*model.Topic, error) {
	t, ok := c.index[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrUnknownTopic, "topic not found", goerr.V("topic", id))
	}
	return t, nil
}

// IDs returns topic ids in display order
func (c *Catalog) IDs() []model.TopicID {
	ids := make([]model.TopicID, len(c.topics))
	for i, t := range c.topics {
		ids[i] = t.ID
	}
	return ids
}
