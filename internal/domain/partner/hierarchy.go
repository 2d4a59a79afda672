package partner

import (
	"context"
	"strings"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ChildrenLoader returns the direct children of every id in parentIDs
type ChildrenLoader func(ctx context.Context, parentIDs []uuid.UUID) ([]Partner, error)

// Descendants is the result of a subtree walk
type Descendants struct {
	// Partners in breadth-first order, nearest tier first
	Partners []*Partner
	ids      map[uuid.UUID]struct{}
}

// Contains reports whether id is in the subtree
func (d *Descendants) Contains(id uuid.UUID) bool {
	_, ok := d.ids[id]
	return ok
}

// IDs returns the member ids in breadth-first order
func (d *Descendants) IDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(d.Partners))
	for _, p := range d.Partners {
		out = append(out, p.ID)
	}
	return out
}

func (d *Descendants) Len() int {
	return len(d.Partners)
}

// CollectDescendants walks the tree breadth-first starting from the direct
// children of rootID. One load per tier; already visited ids are skipped so a
// corrupt parent cycle terminates.
func CollectDescendants(ctx context.Context, rootID uuid.UUID, load ChildrenLoader) (*Descendants, error) {
	result := &Descendants{ids: map[uuid.UUID]struct{}{}}
	visited := map[uuid.UUID]struct{}{rootID: {}}
	frontier := []uuid.UUID{rootID}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		children, err := load(ctx, frontier)
		if err != nil {
			return nil, err
		}
		next := make([]uuid.UUID, 0, len(children))
		for i := range children {
			child := &children[i]
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			result.ids[child.ID] = struct{}{}
			result.Partners = append(result.Partners, child)
			next = append(next, child.ID)
		}
		frontier = next
	}
	return result, nil
}

// CodeHierarchyGap is returned when a partner cannot be placed because an
// intermediate tier has no active partner
const CodeHierarchyGap = "HIERARCHY_GAP"

// HierarchyGap reports whether a partner of some tier can be created under an actor
type HierarchyGap struct {
	HasGap         bool          `json:"has_gap"`
	MissingLevels  []PartnerType `json:"missing_levels"`
	DirectParentID *uuid.UUID    `json:"direct_parent_id,omitempty"`
}

// FindHierarchyGap checks every tier strictly between the actor and the
// target for at least one active partner in the actor's subtree. When there
// is no gap the default direct parent is the newest active partner one tier
// above the target, or the actor itself when the target is its direct child
// tier. A missing default parent is reported as a gap at that tier.
func FindHierarchyGap(actor *Partner, targetType PartnerType, subtree *Descendants) (*HierarchyGap, error) {
	if !targetType.IsValid() || targetType == PartnerTypeSystemAdmin {
		return nil, shared.NewDomainError("INVALID_PARTNER_TYPE", "Cannot create a partner of type "+string(targetType))
	}
	targetLevel := targetType.Level()
	if targetLevel <= actor.Level {
		return nil, shared.NewDomainError("FORBIDDEN",
			actor.Type.DisplayName()+" cannot create a "+targetType.DisplayName())
	}

	if targetLevel == actor.Level+1 {
		id := actor.ID
		return &HierarchyGap{MissingLevels: []PartnerType{}, DirectParentID: &id}, nil
	}

	newestActive := map[int]*Partner{}
	for _, p := range subtree.Partners {
		if !p.IsActive() {
			continue
		}
		if cur, ok := newestActive[p.Level]; !ok || p.CreatedAt.After(cur.CreatedAt) {
			newestActive[p.Level] = p
		}
	}

	gap := &HierarchyGap{MissingLevels: []PartnerType{}}
	for level := actor.Level + 1; level <= targetLevel-1; level++ {
		if _, ok := newestActive[level]; !ok {
			gap.MissingLevels = append(gap.MissingLevels, mustTypeForLevel(level))
		}
	}
	if len(gap.MissingLevels) > 0 {
		gap.HasGap = true
		return gap, nil
	}

	id := newestActive[targetLevel-1].ID
	gap.DirectParentID = &id
	return gap, nil
}

// Err returns a HIERARCHY_GAP domain error naming the missing tiers, or nil
// when there is no gap
func (g *HierarchyGap) Err() error {
	if g == nil || !g.HasGap {
		return nil
	}
	names := make([]string, len(g.MissingLevels))
	for i, t := range g.MissingLevels {
		names[i] = t.DisplayName()
	}
	return shared.NewDomainError(CodeHierarchyGap, "Missing active partner at tier: "+strings.Join(names, ", "))
}
