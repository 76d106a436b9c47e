package exclusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
)

func split(f *Filter, clients []model.ClientProfile) (in []model.ClientProfile, ex []model.ExclusionRecord) {
	for _, c := range clients {
		if rec, ok := f.Exclude(c); ok {
			ex = append(ex, rec)
			continue
		}
		in = append(in, c)
	}
	return in, ex
}

func TestExcludeDefaultRules(t *testing.T) {
	f := New(DefaultRules())
	clients := []model.ClientProfile{
		{Email: "a@x.com", MembershipUsed: "Intro Trial"},
		{Email: "b@x.com", MembershipUsed: "Friends & Family Pass"},
		{Email: "c@x.com", MembershipUsed: "STAFF comp"},
		{Email: "d@x.com", MembershipUsed: "Influencer Event"},
	}
	in, ex := split(f, clients)
	require.Len(t, in, 1)
	assert.Equal(t, "a@x.com", in[0].Email)
	require.Len(t, ex, 3)
	assert.Equal(t, "friends & family", ex[0].Reason)
	assert.Equal(t, "staff comp", ex[1].Reason)
	// influencer is listed before event, so it wins
	assert.Equal(t, "promotional", ex[2].Reason)
	assert.Equal(t, "membership~influencer", ex[2].Rule)
	for _, e := range ex {
		assert.NotEmpty(t, e.Reason)
	}
}

func TestFirstMatchingRuleWins(t *testing.T) {
	f := New([]Rule{
		{Field: FieldEmail, Pattern: "@studio.com", Reason: "staff email"},
		{Field: FieldTeacher, Pattern: "Mia", Reason: "teacher comp"},
	})
	c := model.ClientProfile{Email: "x@studio.com", Teacher: "Mia"}
	r, ok := f.Match(c)
	require.True(t, ok)
	assert.Equal(t, "staff email", r.Reason)
}

func TestExcludeIsIndependentOfOrder(t *testing.T) {
	f := New(DefaultRules())
	a := model.ClientProfile{Email: "a@x.com", MembershipUsed: "Promo Class"}
	b := model.ClientProfile{Email: "b@x.com", MembershipUsed: "Employee"}
	_, ex1 := split(f, []model.ClientProfile{a, b})
	_, ex2 := split(f, []model.ClientProfile{b, a})
	reasons := func(ex []model.ExclusionRecord) map[string]string {
		m := map[string]string{}
		for _, e := range ex {
			m[e.Client.Email] = e.Reason
		}
		return m
	}
	assert.Equal(t, reasons(ex1), reasons(ex2))
}

func TestBlankRulesAndReasons(t *testing.T) {
	f := New([]Rule{{Field: FieldTeacher, Pattern: "  "}, {Field: FieldLastName, Pattern: "smith"}})
	_, ok := f.Exclude(model.ClientProfile{Teacher: "Mia"})
	assert.False(t, ok, "blank pattern must not match everything")

	rec, ok := f.Exclude(model.ClientProfile{LastName: "Smithers"})
	require.True(t, ok)
	assert.Equal(t, "matched last_name~smith", rec.Reason)

	_, ok = New(nil).Exclude(model.ClientProfile{Email: "a@x.com"})
	assert.False(t, ok)
}
