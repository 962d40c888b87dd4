package domain

// AutomationStatus enumerates the lifecycle of an Automation.
type AutomationStatus string

const (
	AutomationActive   AutomationStatus = "Active"
	AutomationPaused   AutomationStatus = "Paused"
	AutomationDraft    AutomationStatus = "Draft"
	AutomationArchived AutomationStatus = "Archived"
)

// FilterOperator is the string-comparison vocabulary internal/filter evaluates.
type FilterOperator string

const (
	OpEquals       FilterOperator = "equals"
	OpIs           FilterOperator = "is"
	OpNotEquals    FilterOperator = "not_equals"
	OpIsNot        FilterOperator = "is_not"
	OpContains     FilterOperator = "contains"
	OpNotContains  FilterOperator = "not_contains"
	OpStartsWith   FilterOperator = "starts_with"
	OpEndsWith     FilterOperator = "ends_with"
	OpIsEmpty      FilterOperator = "is_empty"
	OpIsNotEmpty   FilterOperator = "is_not_empty"
	OpIn           FilterOperator = "in"
	OpNotIn        FilterOperator = "not_in"

	// Date-trigger operators. Recognized by the filter DSL but evaluated by
	// the scheduler (internal/automation), not by internal/filter.
	OpInNextDays           FilterOperator = "in_next_days"
	OpInLastDays           FilterOperator = "in_last_days"
	OpLessThanDaysFuture   FilterOperator = "less_than_days_future"
	OpMoreThanDaysFuture   FilterOperator = "more_than_days_future"
)

// DateTriggerField enumerates the fields a date-trigger rule may reference.
type DateTriggerField string

const (
	FieldPolicyExpiration DateTriggerField = "policy_expiration"
	FieldPolicyEffective  DateTriggerField = "policy_effective"
	FieldAccountCreated   DateTriggerField = "account_created"
)

// IsDateTriggerField reports whether field names one of the recognized
// date-trigger anchors.
func IsDateTriggerField(field string) bool {
	switch DateTriggerField(field) {
	case FieldPolicyExpiration, FieldPolicyEffective, FieldAccountCreated:
		return true
	}
	return false
}

// IsDateTriggerOperator reports whether op is one of the date-trigger operators.
func IsDateTriggerOperator(op FilterOperator) bool {
	switch op {
	case OpInNextDays, OpInLastDays, OpLessThanDaysFuture, OpMoreThanDaysFuture:
		return true
	}
	return false
}

// FilterRule is a single leaf condition: {field, operator, value}.
type FilterRule struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value"`
}

// FilterGroup is a set of rules ANDed together. Groups are ORed against
// each other.
type FilterGroup struct {
	Rules []FilterRule `json:"rules"`
}

// FilterConfig is the tenant filter DSL attached to an Automation.
type FilterConfig struct {
	Groups []FilterGroup `json:"groups"`
}

// NodeType enumerates the tagged variants of a WorkflowNode.
type NodeType string

const (
	NodeTrigger       NodeType = "trigger"
	NodeEntryCriteria NodeType = "entry_criteria"
	NodeSendEmail     NodeType = "send_email"
	NodeDelay         NodeType = "delay"
)

// DelayUnit enumerates the unit a delay node's duration is expressed in.
type DelayUnit string

const (
	DelayHours DelayUnit = "hours"
	DelayDays  DelayUnit = "days"
	DelayWeeks DelayUnit = "weeks"
)

// NodeConfig carries the typed payload for a WorkflowNode. Only the fields
// relevant to Type are populated; the rest are zero.
type NodeConfig struct {
	// trigger
	Time string `json:"time,omitempty"`

	// send_email
	Template    string `json:"template,omitempty"`
	TemplateKey string `json:"templateKey,omitempty"`

	// delay
	Duration int       `json:"duration,omitempty"`
	Unit     DelayUnit `json:"unit,omitempty"`
}

// WorkflowNode is one node in an Automation's ordered workflow graph.
// Branches other than "yes" are preserved verbatim but never traversed by
// the core scheduler (see Open Question decisions in DESIGN.md).
type WorkflowNode struct {
	ID       string                    `json:"id"`
	Type     NodeType                  `json:"type"`
	Config   NodeConfig                `json:"config"`
	Branches map[string][]WorkflowNode `json:"branches,omitempty"`
}

// Automation is an owner-scoped workflow definition: filter rules that
// select accounts, plus an ordered node graph describing what to send and
// when, relative to qualification.
type Automation struct {
	ID       string           `json:"id" db:"id"`
	OwnerID  string           `json:"owner_id" db:"owner_id"` // empty = system default, applies to all owners
	Name     string           `json:"name" db:"name"`
	Status   AutomationStatus `json:"status" db:"status"`
	TimeZone string           `json:"time_zone" db:"time_zone"` // IANA name; defaults to "UTC"

	FilterConfig FilterConfig   `json:"filter_config" db:"filter_config"`
	Nodes        []WorkflowNode `json:"nodes" db:"nodes"`
}

// EmailTemplate is owner-scoped send content.
type EmailTemplate struct {
	ID          string   `json:"id" db:"id"`
	OwnerID     string   `json:"owner_id" db:"owner_id"`
	DefaultKey  string   `json:"default_key" db:"default_key"`
	Category    string   `json:"category" db:"category"`
	Subject     string   `json:"subject" db:"subject"`
	HTMLContent string   `json:"html_content" db:"html_content"`
	TextContent string   `json:"text_content" db:"text_content"`
	FromEmail   string   `json:"from_email" db:"from_email"`
	FromName    string   `json:"from_name" db:"from_name"`
	MergeFields []string `json:"merge_fields" db:"merge_fields"`
}

// SenderDomainStatus enumerates SenderDomain verification state.
type SenderDomainStatus string

const (
	SenderDomainPending  SenderDomainStatus = "pending"
	SenderDomainVerified SenderDomainStatus = "verified"
)

// SenderDomain is an owner-scoped sending domain, optionally enabled for
// inbound-parse (reply ingress, §4.9 domain fallback).
type SenderDomain struct {
	ID                  string             `json:"id" db:"id"`
	OwnerID             string             `json:"owner_id" db:"owner_id"`
	Domain              string             `json:"domain" db:"domain"`
	Status              SenderDomainStatus `json:"status" db:"status"`
	InboundParseEnabled bool               `json:"inbound_parse_enabled" db:"inbound_parse_enabled"`
}
