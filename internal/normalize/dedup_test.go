package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
)

func TestDedupFirstSeenWins(t *testing.T) {
	n := New(DefaultOptions())
	clients, _ := n.Clients([]model.RawRow{
		{"Email": "dup@x.com", "First Name": "First", "Teacher": "Mia"},
		{"Email": "other@x.com", "First Name": "Other"},
		{"Email": " DUP@x.com", "First Name": "Second", "Teacher": "Raj"},
	})
	out, st := Dedup(clients)
	require.Len(t, out, 2)
	assert.Equal(t, "First", out[0].FirstName)
	assert.Equal(t, "Mia", out[0].Teacher)
	assert.Equal(t, "other@x.com", out[1].Email)
	assert.Equal(t, DedupStats{Input: 3, Unique: 2, Duplicates: 1}, st)
}

func TestDedupFallbackKeys(t *testing.T) {
	in := []model.ClientProfile{
		{MemberID: "7", FirstName: "a"},
		{MemberID: "7", FirstName: "b"},
		{FirstName: "anon"},
		{FirstName: "anon"},
	}
	out, st := Dedup(in)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].FirstName)
	assert.Equal(t, 1, st.Duplicates)
}

func TestDedupIsDeterministic(t *testing.T) {
	in := []model.ClientProfile{
		{Email: "c@x.com"}, {Email: "a@x.com"}, {Email: "b@x.com"}, {Email: "a@x.com", FirstName: "late"},
	}
	first, _ := Dedup(in)
	for i := 0; i < 20; i++ {
		again, _ := Dedup(in)
		require.Equal(t, first, again)
	}
	assert.Equal(t, []string{"c@x.com", "a@x.com", "b@x.com"}, []string{first[0].Email, first[1].Email, first[2].Email})
}
