// Package model holds the canonical records shared by every pipeline stage.
package model

import "time"

// RawRow is one row of an export: column label to raw scalar (string or number).
type RawRow map[string]any

// ClientProfile is a trial client after normalization and dedup.
type ClientProfile struct {
	MemberID           string `json:"member_id"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Email              string `json:"email"`
	FirstVisitDate     string `json:"first_visit_date"`
	FirstVisitLocation string `json:"first_visit_location"`
	MembershipUsed     string `json:"membership_used"`
	Teacher            string `json:"teacher"`
	// Position is the index of the source row that supplied this profile.
	Position int `json:"position"`
}

// Key returns the identity used in audit lists: email when present, else member ID.
func (c ClientProfile) Key() string {
	if c.Email != "" {
		return c.Email
	}
	return c.MemberID
}

// PurchaseRecord is a normalized payment transaction.
type PurchaseRecord struct {
	Email    string    `json:"email"`
	MemberID string    `json:"member_id"`
	Date     time.Time `json:"date"`
	RawDate  string    `json:"raw_date,omitempty"`
	Value    float64   `json:"value"`
	Category string    `json:"category"`
	Product  string    `json:"product"`
	Refunded bool      `json:"refunded"`
	Position int       `json:"position"`
}

// BookingRecord is a normalized class booking, used to count post-trial visits.
type BookingRecord struct {
	Email    string    `json:"email"`
	MemberID string    `json:"member_id"`
	Date     time.Time `json:"date"`
	Teacher  string    `json:"teacher"`
	Location string    `json:"location"`
	Position int       `json:"position"`
}

type ConversionStatus string

const (
	Converted    ConversionStatus = "converted"
	NotConverted ConversionStatus = "not_converted"
)

type RetentionStatus string

const (
	Retained    RetentionStatus = "retained"
	NotRetained RetentionStatus = "not_retained"
)

// Validation codes recorded on a client. They never abort the pipeline.
const (
	ErrInvalidFirstVisitDate = "invalid_first_visit_date"
	ErrMissingFirstVisitDate = "missing_first_visit_date"
	ErrNegativeSaleValue     = "negative_sale_value"
	ErrMissingEmail          = "missing_email"
	ErrMissingIdentifier     = "missing_identifier"
)

// ConversionResult is produced exactly once per client.
type ConversionResult struct {
	Status               ConversionStatus `json:"status"`
	FirstPurchaseDate    *time.Time       `json:"first_purchase_date,omitempty"`
	FirstPurchaseProduct *string          `json:"first_purchase_product,omitempty"`
	FirstPurchaseValue   *float64         `json:"first_purchase_value,omitempty"`
	DaysToConversion     *int             `json:"days_to_conversion,omitempty"`
	Explanation          string           `json:"explanation"`
	ValidationErrors     []string         `json:"validation_errors"`
	Candidates           int              `json:"candidates"`
}

// IsConverted reports whether the client made a qualifying purchase.
func (r ConversionResult) IsConverted() bool { return r.Status == Converted }

// Revenue is the first purchase value for converted clients and 0 otherwise.
func (r ConversionResult) Revenue() float64 {
	if r.Status != Converted || r.FirstPurchaseValue == nil {
		return 0
	}
	return *r.FirstPurchaseValue
}

// RetentionResult is produced exactly once per client.
type RetentionResult struct {
	Status          RetentionStatus `json:"status"`
	VisitsPostTrial int             `json:"visits_post_trial"`
}

// IsRetained reports whether the client came back after the trial.
func (r RetentionResult) IsRetained() bool { return r.Status == Retained }

// ExclusionRecord explains why a client is left out of aggregate counts.
type ExclusionRecord struct {
	Client ClientProfile `json:"client"`
	Reason string        `json:"reason"`
	Rule   string        `json:"rule"`
}

// ClientOutcome bundles a client with both classifications.
type ClientOutcome struct {
	Client     ClientProfile    `json:"client"`
	Conversion ConversionResult `json:"conversion"`
	Retention  RetentionResult  `json:"retention"`
	Excluded   bool             `json:"excluded"`
}

// TeacherPeriodMetric is one aggregation bucket.
type TeacherPeriodMetric struct {
	Teacher                      string  `json:"teacher"`
	Location                     string  `json:"location"`
	Period                       string  `json:"period"`
	NewClients                   int     `json:"new_clients"`
	RetainedClients              int     `json:"retained_clients"`
	NotRetainedClients           int     `json:"not_retained_clients"`
	ConvertedClients             int     `json:"converted_clients"`
	NotConvertedClients          int     `json:"not_converted_clients"`
	TotalRevenue                 float64 `json:"total_revenue"`
	PostTrialVisits              int     `json:"post_trial_visits"`
	RetentionRate                float64 `json:"retention_rate"`
	ConversionRate               float64 `json:"conversion_rate"`
	AvgRevenuePerConvertedClient float64 `json:"avg_revenue_per_converted_client"`
	AvgVisitsPostTrial           float64 `json:"avg_visits_post_trial"`
	Rollup                       bool    `json:"rollup"`
}
