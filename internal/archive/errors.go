package archive

import "fmt"

// Stage names the step of an operation that failed.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageParse  Stage = "parse"
	StageEnrich Stage = "enrich"
	StageStore  Stage = "store"
	StageMedia  Stage = "media"
	StageLink   Stage = "link"
)

// ItemError is a failed operation on a single item.
type ItemError struct {
	Kind  string
	ID    string
	Stage Stage
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Stage, e.Kind, e.ID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// ContainerError is a failed container operation. ItemID is set when a single entry of
// the listing failed.
type ContainerError struct {
	Kind     string
	ID       string
	Relation string
	ItemID   string
	Stage    Stage
	Err      error
}

func (e *ContainerError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s %s/%s/%s: item %s: %v", e.Stage, e.Kind, e.ID, e.Relation, e.ItemID, e.Err)
	}
	return fmt.Sprintf("%s %s/%s/%s: %v", e.Stage, e.Kind, e.ID, e.Relation, e.Err)
}

func (e *ContainerError) Unwrap() error { return e.Err }
