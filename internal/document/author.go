package document

import (
	"encoding/json"
	"fmt"
)

// Author is the public profile attached to a piece of content.
type Author struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	URLToken string `yaml:"url_token,omitempty" json:"url_token,omitempty"`
	UserType string `yaml:"user_type" json:"user_type"`
	Headline string `yaml:"headline,omitempty" json:"headline,omitempty"`
}

// ParseAuthor decodes an author object from an API reply. Anonymous authors carry the id
// "0" and yield nil.
func ParseAuthor(raw json.RawMessage) (*Author, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var a Author
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decoding author: %w", err)
	}
	if a.ID == "" || a.ID == "0" {
		return nil, nil
	}
	switch a.UserType {
	case "people", "organization":
	case "":
		a.UserType = "people"
	default:
		return nil, fmt.Errorf("unknown user type %q", a.UserType)
	}
	return &a, nil
}
