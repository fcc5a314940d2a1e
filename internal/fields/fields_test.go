package fields

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSalaryFromText(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{
			name: "k range",
			text: "We offer $120k-$150k plus equity.",
			want: "$120k-$150k",
		},
		{
			name: "full range with commas",
			text: "Base salary $110,000 - $140,000 depending on experience.",
			want: "$110000 - $140000",
		},
		{
			name: "single amount",
			text: "Compensation up to $95,000 per year.",
			want: "$95000",
		},
		{
			name: "range beats single",
			text: "Bonus of $5000. Salary range $90,000 to $120,000.",
			want: "$90000 to $120000",
		},
		{
			name: "zero placeholder ignored",
			text: "Earn from $0 with commissions.",
			want: "",
		},
		{
			name: "no salary",
			text: "Competitive compensation and benefits.",
			want: "",
		},
		{
			name: "empty",
			text: "",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SalaryFromText(tc.text))
		})
	}
}

func TestSplitLocationPosted(t *testing.T) {
	cases := []struct {
		name         string
		header       string
		wantLocation string
		wantPosted   string
	}{
		{
			name:         "location and posted",
			header:       "New York, NY · 3 days ago · 57 applicants",
			wantLocation: "New York, NY",
			wantPosted:   "3 days ago",
		},
		{
			name:         "reposted",
			header:       "Remote · Reposted 2 weeks ago",
			wantLocation: "Remote",
			wantPosted:   "Reposted 2 weeks ago",
		},
		{
			name:         "location only",
			header:       "Austin, TX (Hybrid)",
			wantLocation: "Austin, TX (Hybrid)",
			wantPosted:   "",
		},
		{
			name:         "navigation chrome rejected",
			header:       "Search by title, skill, or company · 1 day ago",
			wantLocation: "",
			wantPosted:   "1 day ago",
		},
		{
			name:         "empty",
			header:       "",
			wantLocation: "",
			wantPosted:   "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			location, posted := SplitLocationPosted(tc.header)
			require.Equal(t, tc.wantLocation, location)
			require.Equal(t, tc.wantPosted, posted)
		})
	}
}

func TestSplitLocationPostedRejectsOverlongHeader(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	location, posted := SplitLocationPosted(string(long))
	require.Empty(t, location)
	require.Empty(t, posted)
}
