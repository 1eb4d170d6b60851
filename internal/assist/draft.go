package assist

import (
	"fmt"
	"maps"

	"github.com/kalambet/localdesk/internal/domain"
	"github.com/kalambet/localdesk/internal/entity"
	"github.com/kalambet/localdesk/internal/interpret"
)

// Draft is the pending state of an add or edit form. Interpreted patches are
// applied to it; Commit turns it into a Create or an Update.
type Draft struct {
	Collection string       `json:"collection"`
	EntityID   string       `json:"entityId,omitempty"`
	Fields     entity.Patch `json:"fields"`
}

// NewDraft opens a form for coll: an edit of entityID when it is set, a new
// entity with default values otherwise.
func NewDraft(coll domain.Collection, entityID string) (*Draft, error) {
	d := &Draft{Collection: coll.Name(), EntityID: entityID}
	if entityID == "" {
		d.Fields = coll.Defaults()
		return d, nil
	}
	cur, ok := coll.Current(entityID)
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", coll.Name(), entityID, domain.ErrNotFound)
	}
	d.Fields = cur
	return d, nil
}

// Apply merges a structured result into the draft. Raw results leave it
// untouched and report false.
func (d *Draft) Apply(r interpret.Result) bool {
	if !r.IsStructured() {
		return false
	}
	if d.Fields == nil {
		d.Fields = entity.Patch{}
	}
	maps.Copy(d.Fields, r.Patch)
	return true
}

// Commit saves the draft to coll.
func (d *Draft) Commit(coll domain.Collection) (any, error) {
	if d.EntityID == "" {
		return coll.Create(d.Fields)
	}
	return coll.Update(d.EntityID, d.Fields)
}
