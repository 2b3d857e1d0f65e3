package bridge

import "sort"

// Operation keywords understood by the engine.
const (
	OpDashboard     = "dashboard"
	OpDay           = "day"
	OpModel         = "model"
	OpSession       = "session"
	OpLimitResets   = "limit-resets"
	OpPNGExport     = "png-export"
	OpListProjects  = "list-projects"
	OpUpdateProject = "update-project"
	OpUsageAccounts = "usage-accounts"
)

// Shape is the top-level JSON kind an operation returns.
type Shape string

const (
	ShapeAny    Shape = ""
	ShapeObject Shape = "object"
	ShapeArray  Shape = "array"
	ShapeScalar Shape = "scalar"
)

func (s Shape) String() string {
	if s == ShapeAny {
		return "document"
	}
	return string(s)
}

// Operation describes one catalog entry. Keys documents the top-level
// payload keys (or element keys for arrays); they are not enforced.
type Operation struct {
	Name    string   `json:"name"`
	Summary string   `json:"summary"`
	Shape   Shape    `json:"shape"`
	Keys    []string `json:"keys"`
}

var catalog = map[string]Operation{
	OpDashboard: {
		Name:    OpDashboard,
		Summary: "Complete dashboard bundle for a date range",
		Shape:   ShapeObject,
		Keys:    []string{"range", "totals", "daily_activity", "timeline", "model_distribution", "hourly_profile", "recent_sessions"},
	},
	OpDay: {
		Name:    OpDay,
		Summary: "Hourly, model and session breakdown of one day",
		Shape:   ShapeObject,
		Keys:    []string{"date", "totals", "hourly", "models", "sessions"},
	},
	OpModel: {
		Name:    OpModel,
		Summary: "Statistics of one model over a date range",
		Shape:   ShapeObject,
		Keys:    []string{"model", "display_name", "range", "totals", "daily_activity", "sessions"},
	},
	OpSession: {
		Name:    OpSession,
		Summary: "Messages and totals of one session",
		Shape:   ShapeObject,
		Keys:    []string{"session_id", "model", "display_name", "date", "first_time", "last_time", "totals", "messages"},
	},
	OpLimitResets: {
		Name:    OpLimitResets,
		Summary: "Usage-limit reset events in a date range",
		Shape:   ShapeArray,
		Keys:    []string{"limit_type", "reset_at", "reset_text", "summary", "year", "date"},
	},
	OpPNGExport: {
		Name:    OpPNGExport,
		Summary: "Rendered PNG summary as base64",
		Shape:   ShapeObject,
		Keys:    []string{"filename", "data", "size", "mime_type"},
	},
	OpListProjects: {
		Name:    OpListProjects,
		Summary: "All discovered projects",
		Shape:   ShapeObject,
		Keys:    []string{"projects"},
	},
	OpUpdateProject: {
		Name:    OpUpdateProject,
		Summary: "Update project name, description or visibility",
		Shape:   ShapeObject,
		Keys:    []string{"project"},
	},
	OpUsageAccounts: {
		Name:    OpUsageAccounts,
		Summary: "Latest usage snapshot per account",
		Shape:   ShapeObject,
		Keys:    []string{"accounts"},
	},
}

// Lookup returns the catalog entry for an operation keyword.
func Lookup(name string) (Operation, bool) {
	op, ok := catalog[name]
	return op, ok
}

// Catalog returns every supported operation sorted by name.
func Catalog() []Operation {
	ops := make([]Operation, 0, len(catalog))
	for _, op := range catalog {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}
