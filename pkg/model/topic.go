package model

import (
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrUnknownTopic     = goerr.New("unknown topic")
	ErrUnknownFacility  = goerr.New("unknown facility")
	ErrUnknownSpecialty = goerr.New("unknown specialty")
)

type TopicID string

// Keyword maps a lowercase trigger to a canned answer
type Keyword struct {
	Trigger string `yaml:"trigger" json:"trigger"`
	Answer  string `yaml:"answer" json:"answer"`
}

// Facility is a health center and the specialties it offers, in display order
type Facility struct {
	Name        string   `yaml:"name" json:"name"`
	Specialties []string `yaml:"specialties" json:"specialties"`
}

// HasSpecialty reports whether the facility offers the given specialty
func (f *Facility) HasSpecialty(specialty string) bool {
	for _, s := range f.Specialties {
		if s == specialty {
			return true
		}
	}
	return false
}

// Topic is the seed configuration of one consultation area. It is loaded once
// and never mutated; answers learned at runtime live in the session.
type Topic struct {
	ID                TopicID     `yaml:"id" json:"id"`
	Name              string      `yaml:"name" json:"name"`
	Emoji             string      `yaml:"emoji" json:"emoji,omitempty"`
	Title             string      `yaml:"title" json:"title"`
	Placeholder       string      `yaml:"placeholder" json:"placeholder"`
	SystemInstruction string      `yaml:"system_instruction" json:"-"`
	Keywords          []Keyword   `yaml:"keywords" json:"-"`
	Facilities        []*Facility `yaml:"facilities" json:"facilities"`
}

// Facility looks up a facility of the topic by name
func (t *Topic) Facility(name string) (*Facility, error) {
	for _, f := range t.Facilities {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, goerr.Wrap(ErrUnknownFacility, "facility is not offered by topic",
		goerr.V("topic", t.ID),
		goerr.V("facility", name))
}
