package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"vortex.app/relay/common/id"
	"vortex.app/relay/internal/model"
)

// EventType is the detail-type of a domain event on the bus. Each type is a
// state in the review pipeline.
type EventType string

const (
	EventPRCreated        EventType = "pr.created"
	EventPRUpdated        EventType = "pr.updated"
	EventCommitPushed     EventType = "commit.pushed"
	EventDiffReady        EventType = "diff.ready"
	EventAnalysisComplete EventType = "analysis.complete"
	EventReportReady      EventType = "report.ready"
)

const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

const (
	ChangeTypePullRequest = "pull_request"
	ChangeTypeCommit      = "commit"
)

// Detail is the typed payload of an event. One concrete type per EventType.
type Detail interface {
	Validate() error
}

// Event is an immutable domain event. Child events inherit CorrelationID so a
// single webhook can be traced through every stage.
type Event struct {
	ID            string
	CorrelationID string
	Source        string
	DetailType    EventType
	Time          time.Time
	Detail        Detail
}

// NewEvent builds a root event; its correlation id is its own id.
func NewEvent(source string, detailType EventType, detail Detail) (Event, error) {
	if err := checkDetail(detailType, detail); err != nil {
		return Event{}, err
	}
	eventID := id.NewString()
	return Event{
		ID:            eventID,
		CorrelationID: eventID,
		Source:        source,
		DetailType:    detailType,
		Time:          time.Now().UTC(),
		Detail:        detail,
	}, nil
}

// Child builds an event emitted by a stage that consumed e.
func (e Event) Child(detailType EventType, detail Detail) (Event, error) {
	child, err := NewEvent(e.Source, detailType, detail)
	if err != nil {
		return Event{}, err
	}
	if e.CorrelationID != "" {
		child.CorrelationID = e.CorrelationID
	}
	return child, nil
}

// MarshalDetail encodes the detail as the bus message's JSON payload.
func (e Event) MarshalDetail() ([]byte, error) {
	if e.Detail == nil {
		return nil, fmt.Errorf("event %s has no detail", e.ID)
	}
	return json.Marshal(e.Detail)
}

// DecodeEvent rebuilds a typed event from its wire parts and validates the
// detail against the detail type.
func DecodeEvent(eventID, correlationID, source string, detailType EventType, at time.Time, raw []byte) (Event, error) {
	factory, ok := detailFactories[detailType]
	if !ok {
		return Event{}, &ValidationError{DetailType: detailType, Err: errors.New("unknown detail type")}
	}
	detail := factory()
	if err := json.Unmarshal(raw, detail); err != nil {
		return Event{}, &ValidationError{DetailType: detailType, Err: err}
	}
	if err := detail.Validate(); err != nil {
		return Event{}, &ValidationError{DetailType: detailType, Err: err}
	}
	if correlationID == "" {
		correlationID = eventID
	}
	return Event{
		ID:            eventID,
		CorrelationID: correlationID,
		Source:        source,
		DetailType:    detailType,
		Time:          at,
		Detail:        derefDetail(detail),
	}, nil
}

var detailFactories = map[EventType]func() Detail{
	EventPRCreated:        func() Detail { return &PullRequestDetail{} },
	EventPRUpdated:        func() Detail { return &PullRequestDetail{} },
	EventCommitPushed:     func() Detail { return &CommitPushedDetail{} },
	EventDiffReady:        func() Detail { return &DiffReadyDetail{} },
	EventAnalysisComplete: func() Detail { return &AnalysisCompleteDetail{} },
	EventReportReady:      func() Detail { return &ReportReadyDetail{} },
}

// derefDetail stores details by value so consumers can type-switch on the
// plain struct types.
func derefDetail(d Detail) Detail {
	switch v := d.(type) {
	case *PullRequestDetail:
		return *v
	case *CommitPushedDetail:
		return *v
	case *DiffReadyDetail:
		return *v
	case *AnalysisCompleteDetail:
		return *v
	case *ReportReadyDetail:
		return *v
	default:
		return d
	}
}

func checkDetail(detailType EventType, detail Detail) error {
	if detail == nil {
		return &ValidationError{DetailType: detailType, Err: errors.New("nil detail")}
	}
	var ok bool
	switch detailType {
	case EventPRCreated, EventPRUpdated:
		_, ok = detail.(PullRequestDetail)
	case EventCommitPushed:
		_, ok = detail.(CommitPushedDetail)
	case EventDiffReady:
		_, ok = detail.(DiffReadyDetail)
	case EventAnalysisComplete:
		_, ok = detail.(AnalysisCompleteDetail)
	case EventReportReady:
		_, ok = detail.(ReportReadyDetail)
	default:
		return &ValidationError{DetailType: detailType, Err: errors.New("unknown detail type")}
	}
	if !ok {
		return &ValidationError{DetailType: detailType, Err: fmt.Errorf("detail type %T does not match", detail)}
	}
	if err := detail.Validate(); err != nil {
		return &ValidationError{DetailType: detailType, Err: err}
	}
	return nil
}

// PullRequestDetail is the payload of pr.created and pr.updated.
type PullRequestDetail struct {
	Provider       string `json:"provider"`
	PRID           int64  `json:"prId"`
	Number         int    `json:"number"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	Repo           string `json:"repo"`
	Action         string `json:"action"`
	HeadSHA        string `json:"headSha,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	Installation   int64  `json:"installation"`
	GithubUsername string `json:"githubUsername"`
}

func (d PullRequestDetail) Validate() error {
	if d.Repo == "" {
		return errors.New("repo is required")
	}
	if d.PRID == 0 || d.Number <= 0 {
		return errors.New("prId and number are required")
	}
	if d.Provider == ProviderGitHub && d.Installation == 0 {
		return errors.New("installation is required for github events")
	}
	return nil
}

// CommitRef is one commit of a push.
type CommitRef struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Author    string `json:"author"`
}

// CommitPushedDetail is the payload of commit.pushed.
type CommitPushedDetail struct {
	Provider       string      `json:"provider"`
	Repo           string      `json:"repo"`
	Ref            string      `json:"ref"`
	Head           string      `json:"head"`
	Pusher         string      `json:"pusher"`
	Installation   int64       `json:"installation"`
	GithubUsername string      `json:"githubUsername"`
	Commits        []CommitRef `json:"commits"`
}

func (d CommitPushedDetail) Validate() error {
	if d.Repo == "" {
		return errors.New("repo is required")
	}
	if d.Provider == ProviderGitHub && d.Installation == 0 {
		return errors.New("installation is required for github events")
	}
	for i, c := range d.Commits {
		if c.ID == "" {
			return fmt.Errorf("commits[%d].id is required", i)
		}
	}
	return nil
}

// Change identifies the reviewed unit (a pull request or a single commit) and
// travels unchanged from diff.ready to report.ready.
type Change struct {
	Provider       string `json:"provider"`
	Type           string `json:"type"`
	Repo           string `json:"repo"`
	PRID           int64  `json:"prId,omitempty"`
	Number         int    `json:"number,omitempty"`
	CommitID       string `json:"commitId,omitempty"`
	GithubUsername string `json:"githubUsername"`
}

func (c Change) Validate() error {
	if c.Repo == "" {
		return errors.New("repo is required")
	}
	switch c.Type {
	case ChangeTypePullRequest:
		if c.PRID == 0 {
			return errors.New("prId is required for pull_request changes")
		}
	case ChangeTypeCommit:
		if c.CommitID == "" {
			return errors.New("commitId is required for commit changes")
		}
	default:
		return fmt.Errorf("unknown change type %q", c.Type)
	}
	return nil
}

// Subject is the audit-style key of the change, e.g. "pr#42" or "commit#abc".
func (c Change) Subject() string {
	if c.Type == ChangeTypeCommit {
		return "commit#" + c.CommitID
	}
	return "pr#" + strconv.FormatInt(c.PRID, 10)
}

// DiffReadyDetail is the payload of diff.ready.
type DiffReadyDetail struct {
	Change
	Files []model.DiffFile `json:"files"`
}

func (d DiffReadyDetail) Validate() error {
	return d.Change.Validate()
}

// AnalysisCompleteDetail is the payload of analysis.complete.
type AnalysisCompleteDetail struct {
	Change
	FileCount int             `json:"fileCount"`
	Model     string          `json:"model"`
	Analysis  json.RawMessage `json:"analysisResult"`
}

func (d AnalysisCompleteDetail) Validate() error {
	if err := d.Change.Validate(); err != nil {
		return err
	}
	if len(d.Analysis) == 0 {
		return errors.New("analysisResult is required")
	}
	return nil
}

// ReportReadyDetail is the payload of report.ready.
type ReportReadyDetail struct {
	Change
	FileCount int    `json:"fileCount"`
	BlobKey   string `json:"s3Key"`
	Email     string `json:"email"`
}

func (d ReportReadyDetail) Validate() error {
	if err := d.Change.Validate(); err != nil {
		return err
	}
	if d.BlobKey == "" {
		return errors.New("s3Key is required")
	}
	return nil
}
