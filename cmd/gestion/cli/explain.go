package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/rbac"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// Resolver reads the current resolution of a user.
type Resolver interface {
	Catalog() *catalog.Catalog
	ResolveFresh(ctx context.Context, userID int64) (rbac.Resolution, error)
}

// PermissionsCLI explains where a user's effective permissions come from.
type PermissionsCLI struct {
	resolver Resolver
}

// NewPermissionsCLI constructs the helper.
func NewPermissionsCLI(resolver Resolver) (*PermissionsCLI, error) {
	if resolver == nil {
		return nil, errors.New("permissions cli: resolver required")
	}
	return &PermissionsCLI{resolver: resolver}, nil
}

// ExplainOptions defines available flags for the explain command.
type ExplainOptions struct {
	UserID     int64
	Module     string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ExplainSummary is the JSON output of explain.
type ExplainSummary struct {
	UserID      int64              `json:"user_id"`
	User        string             `json:"user"`
	Active      bool               `json:"active"`
	SuperAdmin  bool               `json:"super_admin"`
	Roles       []string           `json:"roles"`
	Permissions []ExplainedGrant   `json:"permissions"`
	Summary     ExplainCountsBlock `json:"summary"`
}

// ExplainedGrant is one effective permission and its origin.
type ExplainedGrant struct {
	Name      string   `json:"name"`
	Source    string   `json:"source"`
	FromRoles []string `json:"from_roles,omitempty"`
}

// ExplainCountsBlock mirrors rbac.Summary.
type ExplainCountsBlock struct {
	Inherited int `json:"inherited"`
	Direct    int `json:"direct"`
	Effective int `json:"effective"`
}

// ExplainCommand prints the effective permissions of a user. Exit codes:
// 0 success, 1 usage or runtime failure, 2 unknown user.
func (c *PermissionsCLI) ExplainCommand(ctx context.Context, opts ExplainOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.UserID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "explain: --user is required and must be positive")
		return 1
	}
	cat := c.resolver.Catalog()
	module := strings.TrimSpace(opts.Module)
	if module != "" {
		if _, ok := cat.ModulePermissions(module); !ok {
			_, _ = fmt.Fprintf(opts.Stderr, "explain: unknown module %q\n", module)
			return 1
		}
	}
	res, err := c.resolver.ResolveFresh(ctx, opts.UserID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "explain: %v\n", err)
		if errors.Is(err, shared.ErrNotFound) {
			return 2
		}
		return 1
	}

	summary := buildExplainSummary(cat, res, module)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "explain: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderExplainHuman(opts.Stdout, summary)
	return 0
}

func buildExplainSummary(cat *catalog.Catalog, res rbac.Resolution, module string) ExplainSummary {
	summary := ExplainSummary{
		UserID:     res.User.ID,
		User:       res.User.Label(),
		Active:     res.User.IsActive,
		SuperAdmin: res.User.SuperAdmin,
		Roles:      res.RoleLabels,
		Summary: ExplainCountsBlock{
			Inherited: res.Summary.Inherited,
			Direct:    res.Summary.Direct,
			Effective: res.Summary.Effective,
		},
	}
	if summary.Roles == nil {
		summary.Roles = []string{}
	}
	summary.Permissions = []ExplainedGrant{}
	for _, mod := range cat.Modules() {
		if module != "" && mod.Key != module {
			continue
		}
		for _, p := range mod.Permissions {
			class := res.Classify(p.Name)
			if class == rbac.ClassNone {
				continue
			}
			summary.Permissions = append(summary.Permissions, ExplainedGrant{
				Name:      p.Name,
				Source:    class.String(),
				FromRoles: res.Sources[p.Name],
			})
		}
	}
	return summary
}

func renderExplainHuman(w io.Writer, s ExplainSummary) {
	status := "active"
	if !s.Active {
		status = "inactive"
	}
	if s.SuperAdmin {
		status += ", super-admin"
	}
	_, _ = fmt.Fprintf(w, "User %d %s (%s)\n", s.UserID, s.User, status)
	if len(s.Roles) == 0 {
		_, _ = fmt.Fprintln(w, "Roles: none")
	} else {
		_, _ = fmt.Fprintf(w, "Roles: %s\n", strings.Join(s.Roles, ", "))
	}
	_, _ = fmt.Fprintf(w, "Inherited %d, direct %d, effective %d\n\n", s.Summary.Inherited, s.Summary.Direct, s.Summary.Effective)
	if len(s.Permissions) == 0 {
		_, _ = fmt.Fprintln(w, "No permissions granted.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PERMISSION\tSOURCE\tROLES")
	for _, g := range s.Permissions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", g.Name, g.Source, strings.Join(g.FromRoles, ", "))
	}
	_ = tw.Flush()
}
