// Package api defines the parameter contract between the desktop shell and
// the bridge, and the JSON helpers shared by the HTTP layer.
package api

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"phobos.org.uk/ccbridge/internal/bridge"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidationError reports a parameter rejected before the engine is invoked.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func requireString(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, "is required")
	}
	return nil
}

// Lexical check only; the engine owns calendar validation.
func requireDate(field, v string) error {
	if err := requireString(field, v); err != nil {
		return err
	}
	if !datePattern.MatchString(v) {
		return invalid(field, "must be YYYY-MM-DD")
	}
	return nil
}

func requireRange(from, to string) error {
	if err := requireDate("from", from); err != nil {
		return err
	}
	return requireDate("to", to)
}

// optionalString treats an empty string like an absent value.
func optionalString(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}

// Params converts shell parameters into a bridge request.
type Params interface {
	Request() (bridge.Request, error)
}

// DashboardParams mirrors the shell's dashboard query.
type DashboardParams struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Refresh     bool    `json:"refresh"`
	Granularity string  `json:"granularity"`
	ProjectID   *string `json:"projectId,omitempty"`
}

func (p DashboardParams) Request() (bridge.Request, error) {
	if err := requireRange(p.From, p.To); err != nil {
		return nil, err
	}
	granularity := p.Granularity
	if granularity == "" {
		granularity = bridge.GranularityMonth
	}
	switch granularity {
	case bridge.GranularityMonth, bridge.GranularityWeek, bridge.GranularityDay:
	default:
		return nil, invalid("granularity", "must be month, week, or day")
	}
	return bridge.DashboardRequest{
		From:        p.From,
		To:          p.To,
		Refresh:     p.Refresh,
		Granularity: granularity,
		ProjectID:   optionalString(p.ProjectID),
	}, nil
}

type DayParams struct {
	Date      string  `json:"date"`
	ProjectID *string `json:"projectId,omitempty"`
}

func (p DayParams) Request() (bridge.Request, error) {
	if err := requireDate("date", p.Date); err != nil {
		return nil, err
	}
	return bridge.DayRequest{Date: p.Date, ProjectID: optionalString(p.ProjectID)}, nil
}

type ModelParams struct {
	Model     string  `json:"model"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	ProjectID *string `json:"projectId,omitempty"`
}

func (p ModelParams) Request() (bridge.Request, error) {
	if err := requireString("model", p.Model); err != nil {
		return nil, err
	}
	if err := requireRange(p.From, p.To); err != nil {
		return nil, err
	}
	return bridge.ModelRequest{Model: p.Model, From: p.From, To: p.To, ProjectID: optionalString(p.ProjectID)}, nil
}

type SessionParams struct {
	SessionID string  `json:"sessionId"`
	ProjectID *string `json:"projectId,omitempty"`
}

func (p SessionParams) Request() (bridge.Request, error) {
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	return bridge.SessionRequest{SessionID: p.SessionID, ProjectID: optionalString(p.ProjectID)}, nil
}

// RangeParams is shared by limit-resets and png-export.
type RangeParams struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type LimitResetsParams RangeParams

func (p LimitResetsParams) Request() (bridge.Request, error) {
	if err := requireRange(p.From, p.To); err != nil {
		return nil, err
	}
	return bridge.LimitResetsRequest{From: p.From, To: p.To}, nil
}

type PNGExportParams RangeParams

func (p PNGExportParams) Request() (bridge.Request, error) {
	if err := requireRange(p.From, p.To); err != nil {
		return nil, err
	}
	return bridge.PNGExportRequest{From: p.From, To: p.To}, nil
}

type ListProjectsParams struct{}

func (ListProjectsParams) Request() (bridge.Request, error) {
	return bridge.ListProjectsRequest{}, nil
}

// UpdateProjectParams keeps an empty name or description: clearing a field
// is a legitimate update, unlike an empty filter.
type UpdateProjectParams struct {
	ProjectID   string  `json:"projectId"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Visible     *bool   `json:"visible,omitempty"`
}

func (p UpdateProjectParams) Request() (bridge.Request, error) {
	if err := requireString("projectId", p.ProjectID); err != nil {
		return nil, err
	}
	return bridge.UpdateProjectRequest{
		ProjectID:   p.ProjectID,
		Name:        p.Name,
		Description: p.Description,
		Visible:     p.Visible,
	}, nil
}

type UsageAccountsParams struct{}

func (UsageAccountsParams) Request() (bridge.Request, error) {
	return bridge.UsageAccountsRequest{}, nil
}

// NewParams returns an empty params value for an operation keyword.
func NewParams(operation string) (Params, bool) {
	switch operation {
	case bridge.OpDashboard:
		return &DashboardParams{}, true
	case bridge.OpDay:
		return &DayParams{}, true
	case bridge.OpModel:
		return &ModelParams{}, true
	case bridge.OpSession:
		return &SessionParams{}, true
	case bridge.OpLimitResets:
		return &LimitResetsParams{}, true
	case bridge.OpPNGExport:
		return &PNGExportParams{}, true
	case bridge.OpListProjects:
		return &ListProjectsParams{}, true
	case bridge.OpUpdateProject:
		return &UpdateProjectParams{}, true
	case bridge.OpUsageAccounts:
		return &UsageAccountsParams{}, true
	}
	return nil, false
}

// DecodeRequest parses a JSON params body for operation into a bridge request.
// An empty body is treated as an empty object.
func DecodeRequest(operation string, body []byte) (bridge.Request, error) {
	params, ok := NewParams(operation)
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", operation)
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, params); err != nil {
			return nil, invalid("body", "is not valid JSON: "+err.Error())
		}
	}
	return params.Request()
}
