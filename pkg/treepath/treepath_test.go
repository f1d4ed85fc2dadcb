package treepath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	c := New("")
	require.Equal(t, "A", c.Compose("", "A"))
	require.Equal(t, "A#B", c.Compose("A", "B"))
	require.Equal(t, "A#B#C", c.Compose("A#B", "C"))

	slash := New("/")
	require.Equal(t, "A/B", slash.Compose("A", "B"))
}

func TestAncestorIDs(t *testing.T) {
	c := New(DefaultSeparator)

	tests := map[string]struct {
		path     string
		expected []string
	}{
		`empty`: {path: "", expected: nil},
		`root`:  {path: "A", expected: []string{}},
		`child`: {path: "A#B", expected: []string{"A"}},
		`deep`:  {path: "A#B#C#D", expected: []string{"A", "B", "C"}},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := c.AncestorIDs(test.path)
			require.Len(t, got, len(test.expected))
			for i := range test.expected {
				require.Equal(t, test.expected[i], got[i])
			}
		})
	}
}

func TestDepth(t *testing.T) {
	c := Codec{}
	require.Equal(t, 0, c.Depth(""))
	require.Equal(t, 1, c.Depth("A"))
	require.Equal(t, 3, c.Depth("A#B#C"))

	// level == depth == ancestors + 1
	for _, p := range []string{"A", "A#B", "A#B#C", "X#Y#Z#W"} {
		require.Equal(t, len(c.AncestorIDs(p))+1, c.Depth(p))
	}
}

func TestIsDescendantPath(t *testing.T) {
	c := New("#")
	require.True(t, c.IsDescendantPath("A#B", "A"))
	require.True(t, c.IsDescendantPath("A#B#C", "A#B"))
	require.False(t, c.IsDescendantPath("A", "A"))
	require.False(t, c.IsDescendantPath("AB#C", "A"))
	require.False(t, c.IsDescendantPath("A", ""))
}

func TestRebase(t *testing.T) {
	c := New("#")

	got, ok := c.Rebase("A#B#C", "A#B", "D#B")
	require.True(t, ok)
	require.Equal(t, "D#B#C", got)

	got, ok = c.Rebase("A#B#C#E", "A#B", "B")
	require.True(t, ok)
	require.Equal(t, "B#C#E", got)

	got, ok = c.Rebase("X#Y", "A#B", "D#B")
	require.False(t, ok)
	require.Equal(t, "X#Y", got)
}

func TestSpliceSegment(t *testing.T) {
	c := New("#")

	tests := map[string]struct {
		path     string
		id       string
		expected string
		ok       bool
	}{
		`middle`:             {path: "A#B#C", id: "B", expected: "A#C", ok: true},
		`leading`:            {path: "B#C#D", id: "B", expected: "C#D", ok: true},
		`terminal_untouched`: {path: "A#B", id: "B", expected: "A#B", ok: false},
		`substring_prefix`:   {path: "A#BB#C", id: "B", expected: "A#BB#C", ok: false},
		`substring_suffix`:   {path: "AB#C", id: "B", expected: "AB#C", ok: false},
		`only_first`:         {path: "B1#B#C", id: "B", expected: "B1#C", ok: true},
		`absent`:             {path: "X#Y", id: "B", expected: "X#Y", ok: false},
		`empty_id`:           {path: "X#Y", id: "", expected: "X#Y", ok: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := c.SpliceSegment(test.path, test.id)
			require.Equal(t, test.ok, ok)
			require.Equal(t, test.expected, got)
			require.Equal(t, test.ok, c.ContainsSegment(test.path, test.id))
		})
	}
}

func TestMultiCharacterSeparator(t *testing.T) {
	c := New("::")
	require.Equal(t, "a::b", c.Compose("a", "b"))
	require.Equal(t, 3, c.Depth("a::b::c"))

	got, ok := c.SpliceSegment("a::b::c", "b")
	require.True(t, ok)
	require.Equal(t, "a::c", got)
}
