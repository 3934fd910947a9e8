package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pr(number int, author string, labels ...string) PullRequest {
	return PullRequest{
		Number: number,
		Author: Identity{Login: author},
		Labels: labels,
	}
}

func numbers(prs []PullRequest) []int {
	out := make([]int, 0, len(prs))
	for _, p := range prs {
		out = append(out, p.Number)
	}
	return out
}

func TestApply(t *testing.T) {
	prs := []PullRequest{
		pr(1, "alice", "bug"),
		pr(2, "bob", "feature", "bug"),
		pr(3, "carol"),
		pr(4, "alice", "feature"),
	}

	tests := []struct {
		name     string
		criteria FilterCriteria
		want     []int
	}{
		{
			name:     "no filters passes everything",
			criteria: FilterCriteria{},
			want:     []int{1, 2, 3, 4},
		},
		{
			name:     "label filter intersects",
			criteria: FilterCriteria{Labels: []string{"bug"}},
			want:     []int{1, 2},
		},
		{
			name:     "username filter",
			criteria: FilterCriteria{Usernames: []string{"alice"}},
			want:     []int{1, 4},
		},
		{
			name:     "both axes combine with AND",
			criteria: FilterCriteria{Labels: []string{"feature"}, Usernames: []string{"alice"}},
			want:     []int{4},
		},
		{
			name:     "exact match only, no case folding",
			criteria: FilterCriteria{Labels: []string{"Bug"}},
			want:     []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(prs, tt.criteria)
			assert.Equal(t, tt.want, numbers(got))
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	prs := []PullRequest{
		pr(1, "alice", "bug"),
		pr(2, "bob", "feature"),
		pr(3, "alice"),
	}
	criteria := FilterCriteria{Labels: []string{"bug", "feature"}}

	once := Apply(prs, criteria)
	twice := Apply(once, criteria)
	assert.Equal(t, once, twice)
}

func TestApplyPreservesOrder(t *testing.T) {
	prs := []PullRequest{pr(9, "a", "x"), pr(3, "a", "x"), pr(7, "a", "x")}
	got := Apply(prs, FilterCriteria{Labels: []string{"x"}})
	assert.Equal(t, []int{9, 3, 7}, numbers(got))
}
