package normalize

import (
	"strings"
	"unicode"
)

// Source identifies one of the three exports.
type Source string

const (
	SourceClients   Source = "clients"
	SourcePurchases Source = "purchases"
	SourceBookings  Source = "bookings"
)

// Field is a canonical field name within a source.
type Field string

const (
	FieldMemberID           Field = "member_id"
	FieldFirstName          Field = "first_name"
	FieldLastName           Field = "last_name"
	FieldEmail              Field = "email"
	FieldFirstVisitDate     Field = "first_visit_date"
	FieldFirstVisitLocation Field = "first_visit_location"
	FieldMembershipUsed     Field = "membership_used"
	FieldTeacher            Field = "teacher"
	FieldDate               Field = "date"
	FieldValue              Field = "value"
	FieldCategory           Field = "category"
	FieldProduct            Field = "product"
	FieldRefunded           Field = "refunded"
	FieldLocation           Field = "location"
)

// Synonyms lists, per source and canonical field, the column labels accepted
// for that field. Earlier labels win when a row carries several.
type Synonyms map[Source]map[Field][]string

// DefaultSynonyms returns the labels seen across the studio exports.
func DefaultSynonyms() Synonyms {
	return Synonyms{
		SourceClients: {
			FieldMemberID:           {"Member ID", "memberID", "Client ID", "MemberId", "id"},
			FieldFirstName:          {"First Name", "firstName", "First"},
			FieldLastName:           {"Last Name", "lastName", "Last"},
			FieldEmail:              {"Email", "E-mail", "Email Address", "Customer Email", "Client Email"},
			FieldFirstVisitDate:     {"First Visit", "First Visit Date", "firstVisitDate", "Visit Date", "Date"},
			FieldFirstVisitLocation: {"First Visit Location", "firstVisitLocation", "Home Location", "Location"},
			FieldMembershipUsed:     {"First Visit Type", "Membership Used", "membershipUsed", "Pricing Option", "Membership"},
			FieldTeacher:            {"First Visit Teacher", "Teacher", "Trainer", "Instructor", "teacherName"},
		},
		SourcePurchases: {
			FieldEmail:    {"Customer Email", "Email", "Client Email", "Buyer Email"},
			FieldMemberID: {"Member ID", "memberID", "Client ID", "MemberId", "id"},
			FieldDate:     {"Payment Date", "Sale Date", "Purchase Date", "Date"},
			FieldValue:    {"Payment Value", "Sale Value", "Value", "Amount", "Price", "Total"},
			FieldCategory: {"Cleaned Category", "Category", "Item Category", "Payment Category"},
			FieldProduct:  {"Cleaned Product", "Product", "Item", "Item Name", "Payment Item"},
			FieldRefunded: {"Refunded", "Is Refunded", "Refund", "Refund Status", "Payment Status"},
		},
		SourceBookings: {
			FieldEmail:    {"Customer Email", "Email", "Client Email"},
			FieldMemberID: {"Member ID", "memberID", "Client ID", "MemberId", "id"},
			FieldDate:     {"Class Date", "Booking Date", "Class Time", "Visit Date", "Date"},
			FieldTeacher:  {"Teacher", "Trainer", "Instructor", "Class Teacher"},
			FieldLocation: {"Location", "Studio", "Class Location"},
		},
	}
}

// Merge returns a copy of s with extra labels appended after the defaults.
func (s Synonyms) Merge(extra Synonyms) Synonyms {
	out := make(Synonyms, len(s))
	for src, fields := range s {
		out[src] = make(map[Field][]string, len(fields))
		for f, labels := range fields {
			out[src][f] = append([]string(nil), labels...)
		}
	}
	for src, fields := range extra {
		if out[src] == nil {
			out[src] = map[Field][]string{}
		}
		for f, labels := range fields {
			out[src][f] = append(out[src][f], labels...)
		}
	}
	return out
}

// labelKey folds a column label so that "First Visit Date", "first_visit_date"
// and "firstVisitDate" compare equal.
func labelKey(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// resolver maps canonical fields of one source to folded label lists.
type resolver map[Field][]string

func newResolver(labels map[Field][]string) resolver {
	r := make(resolver, len(labels))
	for f, ls := range labels {
		keys := make([]string, 0, len(ls))
		for _, l := range ls {
			if k := labelKey(l); k != "" {
				keys = append(keys, k)
			}
		}
		r[f] = keys
	}
	return r
}

// foldedRow indexes a raw row by folded label. On label collisions the first
// non-empty cell wins; columns are visited in sorted order for determinism.
type foldedRow map[string]any
