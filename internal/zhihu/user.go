package zhihu

import (
	"encoding/json"
	"fmt"

	"webdl/internal/document"
	"webdl/internal/media"
	"webdl/internal/store"
)

const KindUser = "user"

var UserVersion = store.Version{Major: 1, Minor: 0}

type UserInfo struct {
	ID       string       `yaml:"id"`
	URLToken string       `yaml:"url_token"`
	UserType string       `yaml:"user_type"`
	Name     string       `yaml:"name"`
	Headline string       `yaml:"headline,omitempty"`
	Avatar   *media.Image `yaml:"avatar,omitempty"`
	Cover    *media.Image `yaml:"cover,omitempty"`
}

// User is a member profile. It is stored under its composite UserID.
type User struct {
	Info        UserInfo
	Description *document.Content
	Raw         *store.RawData
}

var _ store.Object = (*User)(nil)

func (u *User) Kind() string           { return KindUser }
func (u *User) ObjectID() string       { return u.UserID().String() }
func (u *User) Version() store.Version { return UserVersion }

func (u *User) UserID() UserID {
	return UserID{ID: u.Info.ID, URLToken: u.Info.URLToken}
}

func (u *User) VisitImages(visit func(string, *media.Image) error) error {
	if err := visitImage("info.avatar", u.Info.Avatar, visit); err != nil {
		return err
	}
	if err := visitImage("info.cover", u.Info.Cover, visit); err != nil {
		return err
	}
	return document.VisitContent(recDescription, u.Description, visit)
}

func (u *User) StoreTo(d *store.Dir) error {
	if err := d.Put(recInfo, u.Info); err != nil {
		return err
	}
	if err := putContent(d, recDescription, u.Description); err != nil {
		return err
	}
	if u.Raw != nil {
		return u.Raw.Put(store.RawDir(d))
	}
	return nil
}

func (u *User) LoadFrom(d *store.Dir, opts store.LoadOptions) error {
	if err := d.Get(recInfo, &u.Info); err != nil {
		return err
	}
	var err error
	if u.Description, err = getContent(d, recDescription); err != nil {
		return err
	}
	if opts.Raw && store.RawDir(d).Has("info") {
		if u.Raw, err = store.LoadRawData(store.RawDir(d)); err != nil {
			return err
		}
	}
	return nil
}

type userReply struct {
	ID          string `json:"id"`
	UserType    string `json:"user_type"`
	Name        string `json:"name"`
	URLToken    string `json:"url_token"`
	Headline    string `json:"headline"`
	AvatarURL   string `json:"avatar_url"`
	CoverURL    string `json:"cover_url"`
	Description string `json:"description"`
}

// ParseUser builds a user from a raw API reply.
func ParseUser(raw *store.RawData) (*User, error) {
	return parseUser(raw.Data, raw)
}

func parseUser(data json.RawMessage, raw *store.RawData) (*User, error) {
	var r userReply
	if err := decode(KindUser, data, &r); err != nil {
		return nil, err
	}
	uid, err := ParseUserID(r.ID + ":" + r.URLToken)
	if err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}
	switch r.UserType {
	case "people", "organization":
	case "":
		r.UserType = "people"
	default:
		return nil, fmt.Errorf("decoding user %s: unknown user type %q", uid, r.UserType)
	}
	return &User{
		Info: UserInfo{
			ID:       uid.ID,
			URLToken: uid.URLToken,
			UserType: r.UserType,
			Name:     r.Name,
			Headline: r.Headline,
			Avatar:   media.NewImage(r.AvatarURL),
			Cover:    media.NewImage(r.CoverURL),
		},
		Description: document.NewContent(r.Description),
		Raw:         raw,
	}, nil
}
