package classify

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
	"github.com/KaramelBytes/trialfunnel-cli/internal/normalize"
)

// ConversionRules are the business predicates deciding which purchases count.
type ConversionRules struct {
	// ExcludedProducts are substrings; a product containing any of them never counts.
	ExcludedProducts []string
	// ExcludedCategories are whole category labels that never count.
	ExcludedCategories []string
	// CurrencySymbol prefixes values in explanation text.
	CurrencySymbol string
}

// DefaultConversionRules excludes "2 for 1" promotions and retail sales.
func DefaultConversionRules() ConversionRules {
	return ConversionRules{
		ExcludedProducts:   []string{"2 for 1"},
		ExcludedCategories: []string{"retail"},
		CurrencySymbol:     "$",
	}
}

// failure is one reason a candidate purchase does not qualify.
// Declaration order is the order reasons appear in explanations.
type failure uint8

const (
	failValue failure = 1 << iota
	failProduct
	failCategory
	failDateInvalid
	failBeforeVisit
	failVisitInvalid
	failRefunded
)

var failureOrder = []failure{failValue, failProduct, failCategory, failDateInvalid, failBeforeVisit, failVisitInvalid, failRefunded}

const noPurchasesExplanation = "no purchase records found."

// ConversionClassifier matches clients to purchases. It is read-only after
// construction, so Classify may be called from many goroutines.
type ConversionClassifier struct {
	purchases  []model.PurchaseRecord
	idx        keyIndex
	products   []string
	categories map[string]struct{}
	currency   string
}

// NewConversionClassifier indexes purchases by email and member ID.
func NewConversionClassifier(purchases []model.PurchaseRecord, rules ConversionRules) *ConversionClassifier {
	cc := &ConversionClassifier{
		purchases:  purchases,
		categories: make(map[string]struct{}, len(rules.ExcludedCategories)),
		currency:   rules.CurrencySymbol,
	}
	cc.idx = buildIndex(len(purchases), func(i int) (string, string) {
		return purchases[i].Email, purchases[i].MemberID
	})
	for _, p := range rules.ExcludedProducts {
		if f := normalize.Fold(p); f != "" {
			cc.products = append(cc.products, f)
		}
	}
	for _, c := range rules.ExcludedCategories {
		if f := normalize.Fold(c); f != "" {
			cc.categories[f] = struct{}{}
		}
	}
	return cc
}

// Candidates returns every purchase matching the client by email or member ID,
// in input order.
func (cc *ConversionClassifier) Candidates(c model.ClientProfile) []model.PurchaseRecord {
	pos := cc.idx.match(c.Email, c.MemberID)
	out := make([]model.PurchaseRecord, len(pos))
	for i, p := range pos {
		out[i] = cc.purchases[p]
	}
	return out
}

// check returns the predicates p fails; zero means p is a valid purchase.
func (cc *ConversionClassifier) check(p model.PurchaseRecord, visit time.Time, visitOK bool) failure {
	var f failure
	if p.Value <= 0 {
		f |= failValue
	}
	product := normalize.Fold(p.Product)
	for _, ex := range cc.products {
		if strings.Contains(product, ex) {
			f |= failProduct
			break
		}
	}
	if _, ok := cc.categories[normalize.Fold(p.Category)]; ok {
		f |= failCategory
	}
	switch {
	case !visitOK:
		f |= failVisitInvalid
	case p.Date.IsZero():
		f |= failDateInvalid
	case p.Date.Before(visit):
		f |= failBeforeVisit
	}
	if p.Refunded {
		f |= failRefunded
	}
	return f
}

// Classify decides converted / not_converted for one client.
func (cc *ConversionClassifier) Classify(c model.ClientProfile) model.ConversionResult {
	res := model.ConversionResult{Status: model.NotConverted, ValidationErrors: []string{}}
	switch {
	case c.Email == "" && c.MemberID == "":
		res.ValidationErrors = append(res.ValidationErrors, model.ErrMissingIdentifier)
	case c.Email == "":
		res.ValidationErrors = append(res.ValidationErrors, model.ErrMissingEmail)
	}
	visit, visitErr := firstVisit(c)
	if visitErr != "" {
		res.ValidationErrors = append(res.ValidationErrors, visitErr)
	}
	visitOK := visitErr == ""

	candidates := cc.Candidates(c)
	res.Candidates = len(candidates)

	var (
		valid    []model.PurchaseRecord
		failures failure
		negative bool
	)
	for _, p := range candidates {
		if p.Value < 0 {
			negative = true
		}
		f := cc.check(p, visit, visitOK)
		if f == 0 {
			valid = append(valid, p)
			continue
		}
		failures |= f
	}
	if negative {
		res.ValidationErrors = append(res.ValidationErrors, model.ErrNegativeSaleValue)
	}

	if len(valid) == 0 {
		if len(candidates) == 0 {
			res.Explanation = noPurchasesExplanation
		} else {
			res.Explanation = "Not converted: " + strings.Join(reasons(failures), "; ") + "."
		}
		return res
	}

	// candidates arrive in input order, so a stable sort keeps ties deterministic
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Date.Before(valid[j].Date) })
	first := valid[0]
	days := int(math.Ceil(first.Date.Sub(visit).Hours() / 24))
	product := first.Product
	value := first.Value
	date := first.Date

	res.Status = model.Converted
	res.FirstPurchaseDate = &date
	res.FirstPurchaseProduct = &product
	res.FirstPurchaseValue = &value
	res.DaysToConversion = &days
	res.Explanation = fmt.Sprintf("Converted after %d %s: first purchase %q for %s",
		days, plural(days, "day", "days"), product, cc.formatMoney(value))
	return res
}

func reasons(f failure) []string {
	var out []string
	for _, bit := range failureOrder {
		if f&bit != 0 {
			out = append(out, bit.String())
		}
	}
	return out
}

func (f failure) String() string {
	switch f {
	case failValue:
		return "zero or negative sale value"
	case failProduct:
		return "excluded product"
	case failCategory:
		return "excluded category"
	case failDateInvalid:
		return "purchase date invalid"
	case failBeforeVisit:
		return "purchase before first visit"
	case failVisitInvalid:
		return "first visit date invalid"
	case failRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

func (cc *ConversionClassifier) formatMoney(v float64) string {
	return message.NewPrinter(language.English).Sprintf("%s%.2f", cc.currency, v)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
