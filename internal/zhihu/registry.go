// Package zhihu defines the item kinds of the Q&A site, their API endpoints and the
// listings that connect them. Registry exposes them to the archive driver.
package zhihu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"webdl/internal/archive"
	"webdl/internal/comment"
	"webdl/internal/remote"
	"webdl/internal/store"
)

// Site is the directory the site's store lives in.
const Site = "zhihu"

var (
	ErrUnknownKind     = errors.New("unknown kind")
	ErrUnknownRelation = errors.New("unknown relation")
)

// Include parameters of listing endpoints.
const (
	answerInclude            = "data[*].is_normal,admin_closed_comment,reward_info,is_collapsed,annotation_action,annotation_detail,collapse_reason,collapsed_by,suggest_edit,comment_count,can_comment,content,editable_content,attachment,voteup_count,reshipment_settings,comment_permission,mark_infos,created_time,updated_time,review_info,excerpt,is_labeled,label_info,relationship.is_authorized,voting,is_author,is_thanked,is_nothelp,is_recognized;data[*].author.badge[?(type=best_answerer)].topics;data[*].question.has_publishing_draft,relationship"
	articleInclude           = "data[*].comment_count,suggest_edit,is_normal,thumbnail_extra_info,thumbnail,can_comment,comment_permission,admin_closed_comment,content,voteup_count,created,updated,upvoted_followees,voting,review_info,is_labeled,label_info;data[*].author.badge[?(type=best_answerer)].topics"
	columnInclude            = "data[*].column.intro,followers,articles_count,voteup_count,items_count,description,created"
	createdCollectionInclude = "data[*].updated_time,answer_count,follower_count,creator,description,is_following,comment_count,created_time"
	likedCollectionInclude   = "data[*].updated_time,answer_count,follower_count,creator,description,is_following,comment_count,created_time"
)

// kind is one row of the kind table.
type kind struct {
	name   string
	key    func(ref string) (string, error)
	url    func(c *remote.Client, id string) (string, error)
	parse  func(*store.RawData) (store.Object, error)
	empty  func() store.Object
	signer remote.Signer
}

var _ archive.Kind = (*kind)(nil)

func (k *kind) Name() string                   { return k.name }
func (k *kind) Key(ref string) (string, error) { return k.key(ref) }
func (k *kind) New() store.Object              { return k.empty() }

func (k *kind) Fetch(ctx context.Context, c *remote.Client, id string) (json.RawMessage, error) {
	u, err := k.url(c, id)
	if err != nil {
		return nil, err
	}
	return c.GetRaw(ctx, u, k.signer)
}

func (k *kind) Parse(raw *store.RawData) (store.Object, error) {
	return k.parse(raw)
}

// Registry resolves the site's kinds and relations by name.
type Registry struct {
	kinds     map[string]*kind
	relations map[string][]*Relation
}

var _ archive.Registry = (*Registry)(nil)

// NewRegistry builds the kind and relation tables. signer signs every item request and
// the first page of every listing.
func NewRegistry(signer remote.Signer) *Registry {
	if signer == nil {
		signer = remote.NoSign{}
	}
	r := &Registry{kinds: map[string]*kind{}, relations: map[string][]*Relation{}}

	r.addKind(KindAnswer, numericKey, endpoint("/api/v4/answers/%s", "include", "content,comment_count,voteup_count"),
		object(parseAnswer), func() store.Object { return &Answer{} }, signer)
	r.addKind(KindArticle, numericKey, endpoint("/api/v4/articles/%s", "", ""),
		object(parseArticle), func() store.Object { return &Article{} }, signer)
	r.addKind(KindQuestion, numericKey, endpoint("/api/v4/questions/%s", "include", "author,description,is_anonymous;detail;comment_count;answer_count;excerpt"),
		object(parseQuestion), func() store.Object { return &Question{} }, signer)
	r.addKind(KindPin, numericKey, endpoint("/api/v4/v2/pins/%s", "", ""),
		object(parsePin), func() store.Object { return &Pin{} }, signer)
	r.addKind(KindCollection, numericKey, endpoint("/api/v4/collections/%s", "", ""),
		object(parseCollectionWrapped), func() store.Object { return &Collection{} }, signer)
	r.addKind(KindColumn, slugKey, endpoint("/api/v4/columns/%s", "include", "intro,created"),
		object(parseColumn), func() store.Object { return &Column{} }, signer)
	r.addKind(KindUser, userKey, userEndpoint("/api/v4/members/%s", "include", "description,cover_url"),
		object(parseUser), func() store.Object { return &User{} }, signer)
	r.addKind(comment.Kind, numericKey, func(c *remote.Client, id string) (string, error) { return comment.ItemURL(c, id), nil },
		object(parseComment), func() store.Object { return &comment.Comment{} }, signer)

	for _, root := range []comment.RootType{comment.RootAnswer, comment.RootArticle, comment.RootCollection, comment.RootPin, comment.RootQuestion} {
		r.addRelation(string(root), RelComment, comment.Kind, func(c *remote.Client, id string) (string, error) {
			return comment.RootURL(c, root, id), nil
		}, object(parseComment), signer)
	}
	r.addRelation(comment.Kind, RelChild, comment.Kind, func(c *remote.Client, id string) (string, error) {
		return comment.ChildURL(c, id), nil
	}, object(parseComment), signer)

	r.addRelation(KindQuestion, RelAnswer, KindAnswer, endpoint("/api/v4/questions/%s/answers", "include", answerInclude), object(parseAnswer), signer)
	r.addRelation(KindCollection, RelItem, KindAny, endpoint("/api/v4/collections/%s/items", "", ""), object(parseCollectionEntry), signer)
	r.addRelation(KindColumn, RelRegular, KindAny, endpoint("/api/v4/columns/%s/items", "", ""), object(parseAny), signer)
	r.addRelation(KindColumn, RelPinned, KindAny, endpoint("/api/v4/columns/%s/pinned-items", "", ""), object(parseAny), signer)

	r.addRelation(KindUser, RelAnswer, KindAnswer, userEndpoint("/api/v4/members/%s/answers", "include", answerInclude), object(parseAnswer), signer)
	r.addRelation(KindUser, RelArticle, KindArticle, userEndpoint("/api/v4/members/%s/articles", "include", articleInclude), object(parseArticle), signer)
	r.addRelation(KindUser, RelPin, KindPin, userEndpoint("/api/v4/members/%s/pins", "", ""), object(parsePin), signer)
	r.addRelation(KindUser, RelQuestion, KindQuestion, userEndpoint("/api/v4/members/%s/questions", "", ""), object(parseQuestion), signer)
	r.addRelation(KindUser, RelColumn, KindColumn, userEndpoint("/api/v4/members/%s/column-contributions", "include", columnInclude), object(parseColumnContribution), signer)
	r.addRelation(KindUser, RelCreatedCollection, KindCollection, userEndpoint("/api/v4/people/%s/collections", "include", createdCollectionInclude), object(parseCollection), signer)
	r.addRelation(KindUser, RelLikedCollection, KindCollection, userEndpoint("/api/v4/members/%s/following-favlists", "include", likedCollectionInclude), object(parseCollection), signer)
	return r
}

func (r *Registry) addKind(name string, key func(string) (string, error), u func(*remote.Client, string) (string, error),
	parse func(*store.RawData) (store.Object, error), empty func() store.Object, signer remote.Signer) {
	r.kinds[name] = &kind{name: name, key: key, url: u, parse: parse, empty: empty, signer: signer}
}

func (r *Registry) addRelation(owner string, rk RelationKind, item string, u func(*remote.Client, string) (string, error),
	parse func(*store.RawData) (store.Object, error), signer remote.Signer) {
	r.relations[owner] = append(r.relations[owner], &Relation{owner: owner, kind: rk, item: item, url: u, parse: parse, signer: signer})
}

func (r *Registry) Kind(name string) (archive.Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

func (r *Registry) Container(kindName, relation string) (archive.Container, error) {
	rel, err := r.Relation(kindName, relation)
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// Relation returns the listing relation of kindName.
func (r *Registry) Relation(kindName, relation string) (*Relation, error) {
	if _, ok := r.kinds[kindName]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kindName)
	}
	for _, rel := range r.relations[kindName] {
		if rel.Relation() == relation {
			return rel, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no %q listing", ErrUnknownRelation, kindName, relation)
}

func (r *Registry) Relations(kindName string) []string {
	rels := r.relations[kindName]
	names := make([]string, 0, len(rels))
	for _, rel := range rels {
		names = append(names, rel.Relation())
	}
	return names
}

// Kinds lists the kind names, sorted.
func (r *Registry) Kinds() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns an empty item of kindName to load from the store, or nil for an unknown kind.
func (r *Registry) New(kindName string) store.Object {
	k, ok := r.kinds[kindName]
	if !ok {
		return nil
	}
	return k.empty()
}

func parseComment(_ json.RawMessage, raw *store.RawData) (*comment.Comment, error) {
	return comment.Parse(raw)
}

func userKey(ref string) (string, error) {
	u, err := ParseUserID(ref)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// endpoint builds an endpoint URL from a format taking the id and an optional query parameter.
func endpoint(format, param, value string) func(*remote.Client, string) (string, error) {
	return func(c *remote.Client, id string) (string, error) {
		return withQuery(c.URL(fmt.Sprintf(format, url.PathEscape(id))), param, value), nil
	}
}

// userEndpoint is endpoint for endpoints addressed by the user's url token.
func userEndpoint(format, param, value string) func(*remote.Client, string) (string, error) {
	return func(c *remote.Client, id string) (string, error) {
		u, err := ParseUserID(id)
		if err != nil {
			return "", err
		}
		return withQuery(c.URL(fmt.Sprintf(format, url.PathEscape(u.URLToken))), param, value), nil
	}
}

func withQuery(u, param, value string) string {
	if param == "" {
		return u
	}
	return u + "?" + url.Values{param: {value}}.Encode()
}
