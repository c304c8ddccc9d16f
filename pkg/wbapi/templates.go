package wbapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"
)

// Level identifies one tier of the photo template trees. Scenes nest
// category → subcategory → item; poses nest group → subgroup → prompt. Only
// the leaf tier carries a generation prompt.
type Level string

const (
	SceneCategory    Level = "scene-category"
	SceneSubcategory Level = "scene-subcategory"
	SceneItem        Level = "scene-item"
	PoseGroup        Level = "pose-group"
	PoseSubgroup     Level = "pose-subgroup"
	PosePrompt       Level = "pose-prompt"
)

type levelRoutes struct {
	// list and create take the parent id; root tiers ignore it
	list   string
	create string
	// item takes the node id
	item string
	leaf bool
}

var levels = map[Level]levelRoutes{
	SceneCategory: {
		list:   "/api/photo/scenes/categories",
		create: "/api/admin/photo/scenes/categories",
		item:   "/api/admin/photo/scenes/categories/%d",
	},
	SceneSubcategory: {
		list:   "/api/photo/scenes/%d/subcategories",
		create: "/api/admin/photo/scenes/categories/%d/subcategories",
		item:   "/api/admin/photo/scenes/subcategories/%d",
	},
	SceneItem: {
		list:   "/api/photo/scenes/subcategories/%d/items",
		create: "/api/admin/photo/scenes/subcategories/%d/items",
		item:   "/api/admin/photo/scenes/items/%d",
		leaf:   true,
	},
	PoseGroup: {
		list:   "/api/photo/poses/groups",
		create: "/api/admin/photo/poses/groups",
		item:   "/api/admin/photo/poses/groups/%d",
	},
	PoseSubgroup: {
		list:   "/api/photo/poses/groups/%d/subgroups",
		create: "/api/admin/photo/poses/groups/%d/subgroups",
		item:   "/api/admin/photo/poses/subgroups/%d",
	},
	PosePrompt: {
		list:   "/api/photo/poses/subgroups/%d/prompts",
		create: "/api/admin/photo/poses/subgroups/%d/prompts",
		item:   "/api/admin/photo/poses/prompts/%d",
		leaf:   true,
	},
}

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if _, ok := levels[l]; !ok {
		return "", eris.Errorf("wbapi: unknown template level %q", s)
	}
	return l, nil
}

// IsRoot reports whether the level has no parent.
func (l Level) IsRoot() bool {
	return l == SceneCategory || l == PoseGroup
}

// IsLeaf reports whether nodes of this level carry a prompt.
func (l Level) IsLeaf() bool {
	return levels[l].leaf
}

// Child returns the level below l, or "" for a leaf.
func (l Level) Child() Level {
	switch l {
	case SceneCategory:
		return SceneSubcategory
	case SceneSubcategory:
		return SceneItem
	case PoseGroup:
		return PoseSubgroup
	case PoseSubgroup:
		return PosePrompt
	}
	return ""
}

// TemplateNode is one entry of a template tree at any level.
type TemplateNode struct {
	ID         int64  `json:"id"`
	ParentID   int64  `json:"-"`
	Name       string `json:"name"`
	Prompt     string `json:"prompt,omitempty"`
	OrderIndex int    `json:"order_index"`
	IsActive   bool   `json:"is_active"`
}

// UnmarshalJSON picks the parent id from whichever parent field the level
// uses.
func (n *TemplateNode) UnmarshalJSON(data []byte) error {
	type plain TemplateNode
	var aux struct {
		plain
		CategoryID    int64 `json:"category_id"`
		SubcategoryID int64 `json:"subcategory_id"`
		GroupID       int64 `json:"group_id"`
		SubgroupID    int64 `json:"subgroup_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return eris.Wrap(err, "wbapi: decode template node")
	}
	*n = TemplateNode(aux.plain)
	for _, id := range []int64{aux.CategoryID, aux.SubcategoryID, aux.GroupID, aux.SubgroupID} {
		if id != 0 {
			n.ParentID = id
			break
		}
	}
	return nil
}

// NodeInput creates or updates a template node. Nil fields are left
// unchanged on update; Prompt is only sent for leaf levels.
type NodeInput struct {
	Name       *string `json:"name,omitempty"`
	Prompt     *string `json:"prompt,omitempty"`
	OrderIndex *int    `json:"order_index,omitempty"`
}

// VideoScenario is a reusable prompt for video generation.
type VideoScenario struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Prompt     string `json:"prompt"`
	OrderIndex int    `json:"order_index"`
	IsActive   bool   `json:"is_active"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// VideoScenarioInput creates or updates a video scenario.
type VideoScenarioInput struct {
	Name       *string `json:"name,omitempty"`
	Prompt     *string `json:"prompt,omitempty"`
	OrderIndex *int    `json:"order_index,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
}

// TemplateAPI manages photo template trees and video scenarios.
type TemplateAPI interface {
	// ListNodes lists the children of parent at level. Root levels ignore
	// parent.
	ListNodes(ctx context.Context, level Level, parent int64) ([]TemplateNode, error)
	CreateNode(ctx context.Context, level Level, parent int64, in NodeInput) (*TemplateNode, error)
	UpdateNode(ctx context.Context, level Level, id int64, in NodeInput) (*TemplateNode, error)
	DeleteNode(ctx context.Context, level Level, id int64) error

	ListVideoScenarios(ctx context.Context) ([]VideoScenario, error)
	CreateVideoScenario(ctx context.Context, in VideoScenarioInput) (*VideoScenario, error)
	UpdateVideoScenario(ctx context.Context, id int64, in VideoScenarioInput) (*VideoScenario, error)
	DeleteVideoScenario(ctx context.Context, id int64) error
}

func routesFor(level Level) (levelRoutes, error) {
	r, ok := levels[level]
	if !ok {
		return levelRoutes{}, eris.Errorf("wbapi: unknown template level %q", level)
	}
	return r, nil
}

func withParent(pattern string, level Level, parent int64) string {
	if level.IsRoot() {
		return pattern
	}
	return fmt.Sprintf(pattern, parent)
}

func (c *httpClient) ListNodes(ctx context.Context, level Level, parent int64) ([]TemplateNode, error) {
	r, err := routesFor(level)
	if err != nil {
		return nil, err
	}
	var out []TemplateNode
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(withParent(r.list, level, parent), nil), nil, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: list %s", level)
	}
	return out, nil
}

func (c *httpClient) CreateNode(ctx context.Context, level Level, parent int64, in NodeInput) (*TemplateNode, error) {
	r, err := routesFor(level)
	if err != nil {
		return nil, err
	}
	if in.Name == nil || *in.Name == "" {
		return nil, eris.Errorf("wbapi: create %s: name is required", level)
	}
	if r.leaf && (in.Prompt == nil || *in.Prompt == "") {
		return nil, eris.Errorf("wbapi: create %s: prompt is required", level)
	}
	if !r.leaf {
		in.Prompt = nil
	}
	var out TemplateNode
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(withParent(r.create, level, parent), nil), in, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: create %s", level)
	}
	return &out, nil
}

func (c *httpClient) UpdateNode(ctx context.Context, level Level, id int64, in NodeInput) (*TemplateNode, error) {
	r, err := routesFor(level)
	if err != nil {
		return nil, err
	}
	if !r.leaf {
		in.Prompt = nil
	}
	var out TemplateNode
	if err := c.doJSON(ctx, http.MethodPut, c.endpoint(fmt.Sprintf(r.item, id), nil), in, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: update %s %d", level, id)
	}
	return &out, nil
}

func (c *httpClient) DeleteNode(ctx context.Context, level Level, id int64) error {
	r, err := routesFor(level)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, c.endpoint(fmt.Sprintf(r.item, id), nil), nil)
	return eris.Wrapf(err, "wbapi: delete %s %d", level, id)
}

func (c *httpClient) ListVideoScenarios(ctx context.Context) ([]VideoScenario, error) {
	var out []VideoScenario
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("/api/video/scenarios/", nil), nil, &out); err != nil {
		return nil, eris.Wrap(err, "wbapi: list video scenarios")
	}
	return out, nil
}

func (c *httpClient) CreateVideoScenario(ctx context.Context, in VideoScenarioInput) (*VideoScenario, error) {
	if in.Name == nil || in.Prompt == nil {
		return nil, eris.New("wbapi: create video scenario: name and prompt are required")
	}
	var out VideoScenario
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("/api/admin/video-scenarios/", nil), in, &out); err != nil {
		return nil, eris.Wrap(err, "wbapi: create video scenario")
	}
	return &out, nil
}

func (c *httpClient) UpdateVideoScenario(ctx context.Context, id int64, in VideoScenarioInput) (*VideoScenario, error) {
	var out VideoScenario
	target := c.endpoint(fmt.Sprintf("/api/admin/video-scenarios/%d", id), nil)
	if err := c.doJSON(ctx, http.MethodPut, target, in, &out); err != nil {
		return nil, eris.Wrapf(err, "wbapi: update video scenario %d", id)
	}
	return &out, nil
}

func (c *httpClient) DeleteVideoScenario(ctx context.Context, id int64) error {
	target := c.endpoint(fmt.Sprintf("/api/admin/video-scenarios/%d", id), nil)
	_, err := c.do(ctx, http.MethodDelete, target, nil)
	return eris.Wrapf(err, "wbapi: delete video scenario %d", id)
}
