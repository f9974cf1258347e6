package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "raw object",
			in:   `{"analysis_result": {"roles": []}}`,
			want: `{"analysis_result": {"roles": []}}`,
		},
		{
			name: "raw array",
			in:   `[1, 2, 3]`,
			want: `[1, 2, 3]`,
		},
		{
			name: "tagged fence",
			in:   "Here is the result:\n```json\n{\"ok\": true}\n```\nDone.",
			want: `{"ok": true}`,
		},
		{
			name: "untagged fence",
			in:   "```\n{\"ok\": true}\n```",
			want: `{"ok": true}`,
		},
		{
			name: "embedded in prose",
			in:   `Based on the analysis, the answer is {"verdict": "yes", "note": "a } inside a string"} as shown.`,
			want: `{"verdict": "yes", "note": "a } inside a string"}`,
		},
		{
			name: "second embedded candidate valid",
			in:   `bad {not json} but then {"fine": 1} follows`,
			want: `{"fine": 1}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := ExtractJSON(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(raw))
		})
	}
}

func TestExtractJSONNoDocument(t *testing.T) {
	for _, in := range []string{"", "   ", "no json here", "{broken", "```\nnot json\n```"} {
		_, err := ExtractJSON(in)
		assert.ErrorIs(t, err, ErrNoJSON, "input %q", in)
	}
}

func TestExtractObject(t *testing.T) {
	var out struct {
		Verdict string `json:"verdict"`
	}
	err := ExtractObject("the model says ```json\n{\"verdict\": \"vulnerable\"}\n``` here", &out)
	require.NoError(t, err)
	assert.Equal(t, "vulnerable", out.Verdict)
}
