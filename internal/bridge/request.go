package bridge

// Command is the argument sequence handed to the engine after the module marker.
type Command struct {
	Keyword string
	Args    []string
}

// Argv returns the keyword followed by the argument tokens.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Keyword)
	return append(argv, c.Args...)
}

// Request is a typed bridge request. Each operation has its own concrete type.
type Request interface {
	Operation() string
	Encode() Command
}

// Granularity values accepted by the dashboard timeline.
const (
	GranularityMonth = "month"
	GranularityWeek  = "week"
	GranularityDay   = "day"
)

// DashboardRequest asks for the complete dashboard bundle.
type DashboardRequest struct {
	From        string
	To          string
	Refresh     bool
	Granularity string
	ProjectID   *string
}

// DayRequest asks for the breakdown of a single day.
type DayRequest struct {
	Date      string
	ProjectID *string
}

// ModelRequest asks for statistics of one model over a date range.
type ModelRequest struct {
	Model     string
	From      string
	To        string
	ProjectID *string
}

// SessionRequest asks for the details of one session.
type SessionRequest struct {
	SessionID string
	ProjectID *string
}

// LimitResetsRequest asks for the usage-limit reset events in a range.
type LimitResetsRequest struct {
	From string
	To   string
}

// PNGExportRequest asks the engine to render the summary image.
type PNGExportRequest struct {
	From string
	To   string
}

// ListProjectsRequest lists every discovered project.
type ListProjectsRequest struct{}

// UpdateProjectRequest changes project metadata. Nil fields are left unchanged.
type UpdateProjectRequest struct {
	ProjectID   string
	Name        *string
	Description *string
	Visible     *bool
}

// UsageAccountsRequest reads the latest usage snapshot per account.
type UsageAccountsRequest struct{}

func (DashboardRequest) Operation() string     { return OpDashboard }
func (DayRequest) Operation() string           { return OpDay }
func (ModelRequest) Operation() string         { return OpModel }
func (SessionRequest) Operation() string       { return OpSession }
func (LimitResetsRequest) Operation() string   { return OpLimitResets }
func (PNGExportRequest) Operation() string     { return OpPNGExport }
func (ListProjectsRequest) Operation() string  { return OpListProjects }
func (UpdateProjectRequest) Operation() string { return OpUpdateProject }
func (UsageAccountsRequest) Operation() string { return OpUsageAccounts }

func (r DashboardRequest) Encode() Command {
	var a args
	a.required("from", r.From)
	a.required("to", r.To)
	a.required("refresh", boolToken(r.Refresh))
	a.required("granularity", r.Granularity)
	a.optional("project-id", r.ProjectID)
	return Command{Keyword: OpDashboard, Args: a}
}

func (r DayRequest) Encode() Command {
	var a args
	a.required("date", r.Date)
	a.optional("project-id", r.ProjectID)
	return Command{Keyword: OpDay, Args: a}
}

func (r ModelRequest) Encode() Command {
	var a args
	a.required("model", r.Model)
	a.required("from", r.From)
	a.required("to", r.To)
	a.optional("project-id", r.ProjectID)
	return Command{Keyword: OpModel, Args: a}
}

func (r SessionRequest) Encode() Command {
	var a args
	a.required("id", r.SessionID)
	a.optional("project-id", r.ProjectID)
	return Command{Keyword: OpSession, Args: a}
}

func (r LimitResetsRequest) Encode() Command {
	var a args
	a.required("from", r.From)
	a.required("to", r.To)
	return Command{Keyword: OpLimitResets, Args: a}
}

func (r PNGExportRequest) Encode() Command {
	var a args
	a.required("from", r.From)
	a.required("to", r.To)
	return Command{Keyword: OpPNGExport, Args: a}
}

func (ListProjectsRequest) Encode() Command {
	return Command{Keyword: OpListProjects}
}

// Encode always joins the project id, even though it is required here:
// project identifiers are derived from paths and may start with '-'.
func (r UpdateProjectRequest) Encode() Command {
	var a args
	a.joined("project-id", r.ProjectID)
	a.optional("name", r.Name)
	a.optional("description", r.Description)
	if r.Visible != nil {
		a.joined("visible", boolToken(*r.Visible))
	}
	return Command{Keyword: OpUpdateProject, Args: a}
}

func (UsageAccountsRequest) Encode() Command {
	return Command{Keyword: OpUsageAccounts}
}

// args accumulates flag tokens in call order.
type args []string

// required emits the two-token form: --name value.
func (a *args) required(name, value string) {
	*a = append(*a, "--"+name, value)
}

// joined emits the single-token form: --name=value.
func (a *args) joined(name, value string) {
	*a = append(*a, "--"+name+"="+value)
}

// optional emits --name=value when value is set and nothing otherwise.
func (a *args) optional(name string, value *string) {
	if value != nil {
		a.joined(name, *value)
	}
}

func boolToken(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
