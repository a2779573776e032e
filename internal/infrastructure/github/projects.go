package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/ports"
)

// ErrStatusOptionMissing means the project has no status option for a lane.
var ErrStatusOptionMissing = fmt.Errorf("status option not found: %w", ports.ErrLaneUnavailable)

const fieldFragment = `fields(first:100){ nodes{ __typename ... on ProjectV2FieldCommon { id name } ... on ProjectV2SingleSelectField { id name options{ id name } } } }`

var (
	orgProjectQuery  = `query($login:String!,$number:Int!){ organization(login:$login){ projectV2(number:$number){ id number ` + fieldFragment + ` } } }`
	userProjectQuery = `query($login:String!,$number:Int!){ user(login:$login){ projectV2(number:$number){ id number ` + fieldFragment + ` } } }`
)

const (
	projectItemsQuery = `query($id:ID!){ node(id:$id){ ... on Issue { projectItems(first:20){ nodes{ id project{ id number } } } } } }`
	addItemMutation   = `mutation($projectId:ID!,$contentId:ID!){ addProjectV2ItemById(input:{projectId:$projectId, contentId:$contentId}){ item{ id } } }`
	setStatusMutation = `mutation($projectId:ID!,$itemId:ID!,$fieldId:ID!,$optionId:String!){ updateProjectV2ItemFieldValue(input:{ projectId:$projectId, itemId:$itemId, fieldId:$fieldId, value:{ singleSelectOptionId:$optionId }}){ projectV2Item{ id } } }`
)

// ProjectConfig locates the board and its status field.
type ProjectConfig struct {
	Owner       string
	Number      int
	StatusField string
	// LaneStatus maps lane label text to a differently named status option.
	LaneStatus map[string]string
}

type projectOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type projectField struct {
	Typename string          `json:"__typename"`
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Options  []projectOption `json:"options"`
}

type project struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Fields struct {
		Nodes []projectField `json:"nodes"`
	} `json:"fields"`
}

// ProjectBoard implements ports.LaneBoard on a Projects v2 single-select field.
type ProjectBoard struct {
	client *Client
	cfg    ProjectConfig
	logger *slog.Logger

	mu      sync.Mutex
	project *project
	status  *projectField
}

var _ ports.LaneBoard = (*ProjectBoard)(nil)

func NewProjectBoard(client *Client, cfg ProjectConfig, logger *slog.Logger) *ProjectBoard {
	if cfg.StatusField == "" {
		cfg.StatusField = "Status"
	}
	if cfg.Number <= 0 {
		cfg.Number = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectBoard{client: client, cfg: cfg, logger: logger}
}

// SetLane moves the issue's project item to the lane's status option,
// adding the issue to the project first when needed.
func (b *ProjectBoard) SetLane(ctx context.Context, issue domain.Issue, lane domain.Lane) error {
	proj, field, err := b.resolve(ctx)
	if err != nil {
		return err
	}

	name := b.optionName(lane)
	optionID := optionByName(field, name)
	if optionID == "" {
		return fmt.Errorf("%w: %q in field %q", ErrStatusOptionMissing, name, field.Name)
	}
	if issue.NodeID == "" {
		return fmt.Errorf("issue #%d has no node id", issue.Number)
	}

	itemID, err := b.itemID(ctx, issue.NodeID, proj.ID)
	if err != nil {
		return fmt.Errorf("find project item for #%d: %w", issue.Number, err)
	}
	if itemID == "" {
		itemID, err = b.addItem(ctx, proj.ID, issue.NodeID)
		if err != nil {
			return fmt.Errorf("add #%d to project: %w", issue.Number, err)
		}
		b.logger.Info("added issue to project", "issue", issue.Number, "project", proj.Number)
	}

	vars := map[string]any{"projectId": proj.ID, "itemId": itemID, "fieldId": field.ID, "optionId": optionID}
	if err := b.client.GraphQL(ctx, setStatusMutation, vars, nil); err != nil {
		return fmt.Errorf("set status of #%d: %w", issue.Number, err)
	}
	return nil
}

func (b *ProjectBoard) optionName(lane domain.Lane) string {
	if mapped, ok := b.cfg.LaneStatus[lane.String()]; ok && mapped != "" {
		return mapped
	}
	return lane.String()
}

// resolve loads the project and status field once per board.
func (b *ProjectBoard) resolve(ctx context.Context) (*project, *projectField, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.project != nil {
		return b.project, b.status, nil
	}

	proj, err := b.fetchProject(ctx)
	if err != nil {
		return nil, nil, err
	}
	field, err := statusField(proj, b.cfg.StatusField)
	if err != nil {
		return nil, nil, err
	}
	b.project, b.status = proj, field
	return proj, field, nil
}

func (b *ProjectBoard) fetchProject(ctx context.Context) (*project, error) {
	vars := map[string]any{"login": b.cfg.Owner, "number": b.cfg.Number}

	var org struct {
		Organization *struct {
			ProjectV2 *project `json:"projectV2"`
		} `json:"organization"`
	}
	err := b.client.GraphQL(ctx, orgProjectQuery, vars, &org)
	if err == nil && org.Organization != nil && org.Organization.ProjectV2 != nil {
		return org.Organization.ProjectV2, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var user struct {
		User *struct {
			ProjectV2 *project `json:"projectV2"`
		} `json:"user"`
	}
	if err := b.client.GraphQL(ctx, userProjectQuery, vars, &user); err != nil {
		return nil, fmt.Errorf("load project %d for %s: %w", b.cfg.Number, b.cfg.Owner, err)
	}
	if user.User == nil || user.User.ProjectV2 == nil {
		return nil, fmt.Errorf("project %d not found for owner %s", b.cfg.Number, b.cfg.Owner)
	}
	return user.User.ProjectV2, nil
}

func statusField(proj *project, name string) (*projectField, error) {
	for i := range proj.Fields.Nodes {
		field := &proj.Fields.Nodes[i]
		if !strings.EqualFold(field.Name, name) {
			continue
		}
		if field.Options == nil {
			return nil, fmt.Errorf("field %q in project %d is not a single-select field", name, proj.Number)
		}
		return field, nil
	}
	return nil, fmt.Errorf("field %q not found in project %d", name, proj.Number)
}

func optionByName(field *projectField, name string) string {
	for _, opt := range field.Options {
		if strings.EqualFold(opt.Name, name) {
			return opt.ID
		}
	}
	return ""
}

func (b *ProjectBoard) itemID(ctx context.Context, nodeID, projectID string) (string, error) {
	var data struct {
		Node *struct {
			ProjectItems struct {
				Nodes []struct {
					ID      string `json:"id"`
					Project struct {
						ID string `json:"id"`
					} `json:"project"`
				} `json:"nodes"`
			} `json:"projectItems"`
		} `json:"node"`
	}
	if err := b.client.GraphQL(ctx, projectItemsQuery, map[string]any{"id": nodeID}, &data); err != nil {
		return "", err
	}
	if data.Node == nil {
		return "", nil
	}
	for _, item := range data.Node.ProjectItems.Nodes {
		if item.Project.ID == projectID {
			return item.ID, nil
		}
	}
	return "", nil
}

func (b *ProjectBoard) addItem(ctx context.Context, projectID, contentID string) (string, error) {
	var data struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}
	vars := map[string]any{"projectId": projectID, "contentId": contentID}
	if err := b.client.GraphQL(ctx, addItemMutation, vars, &data); err != nil {
		return "", err
	}
	if data.AddProjectV2ItemByID.Item.ID == "" {
		return "", errors.New("no item id returned")
	}
	return data.AddProjectV2ItemByID.Item.ID, nil
}
