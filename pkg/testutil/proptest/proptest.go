// Package proptest provides property-based testing helpers for comparing a
// reference implementation against the shipped one, plus generators for the
// link and message shapes this project deals in.
//
// Built on pgregory.net/rapid, so failing inputs shrink automatically.
//
// Example:
//
//	func TestDedupe_MatchesReference(t *testing.T) {
//		proptest.CompareImplementations(t,
//			"FindAllIssueRefs",
//			proptest.RefText,
//			referenceFindAll,
//			preview.FindAllIssueRefs,
//			proptest.SliceEqual[string],
//		)
//	}
package proptest

import (
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// CompareImplementations checks that two implementations agree on randomly
// generated inputs. The reference goes first; the implementation under test
// second. Any disagreement fails with the (shrunk) input attached.
func CompareImplementations[I, O any](
	t *testing.T,
	name string,
	genInput func(*rapid.T) I,
	refImpl func(I) O,
	impl func(I) O,
	equal func(O, O) bool,
) {
	t.Helper()
	rapid.Check(t, func(rt *rapid.T) {
		input := genInput(rt)
		want := refImpl(input)
		got := impl(input)
		if !equal(want, got) {
			t.Fatalf("%s: implementations differ\ninput: %+v\nreference: %+v\ngot: %+v",
				name, input, want, got)
		}
	})
}

// CheckDeterminism verifies that repeated calls with the same input yield
// the same output, the baseline property for every pure formatter here.
func CheckDeterminism[I, O any](
	t *testing.T,
	name string,
	genInput func(*rapid.T) I,
	impl func(I) O,
) {
	t.Helper()
	CompareImplementations(t, name, genInput, impl, impl, DeepEqual[O])
}

// DeepEqual compares with reflect.DeepEqual.
func DeepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// SliceEqual compares slices element by element with ==.
func SliceEqual[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ----------------------------------------------------------------------------
// Domain generators
// ----------------------------------------------------------------------------

// CompactTS generates a compact permalink timestamp (7 to 16 digits, no
// leading zero).
func CompactTS(t *rapid.T) string {
	return rapid.StringMatching(`[1-9][0-9]{6,15}`).Draw(t, "compact_ts")
}

// ChannelID generates an uppercase alphanumeric channel ID.
func ChannelID(t *rapid.T) string {
	return rapid.StringMatching(`[A-Z][A-Z0-9]{3,10}`).Draw(t, "channel_id")
}

// PermalinkURL generates a syntactically valid message permalink on the
// default host, threaded about half the time.
func PermalinkURL(t *rapid.T) string {
	ws := rapid.StringMatching(`[a-z0-9][a-z0-9-]{0,12}`).Draw(t, "workspace")
	url := "https://" + ws + ".slack.com/archives/" + ChannelID(t) + "/p" + CompactTS(t)
	if rapid.Bool().Draw(t, "threaded") {
		url += "?thread_ts=" + rapid.StringMatching(`[1-9][0-9]{0,9}\.[0-9]{6}`).Draw(t, "thread_ts")
	}
	return url
}

// IssueRef generates a tracker identifier like "ENG-123".
func IssueRef(t *rapid.T) string {
	return rapid.StringMatching(`[A-Z]{2,5}-[0-9]{1,5}`).Draw(t, "issue_ref")
}

// RefText generates prose with zero or more issue refs scattered through
// it, including deliberate duplicates.
func RefText(t *rapid.T) string {
	parts := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 0, 12).Draw(t, "words")
	refs := rapid.SliceOfN(rapid.Custom(IssueRef), 0, 5).Draw(t, "refs")
	for _, ref := range refs {
		n := 1
		if rapid.Bool().Draw(t, "dup") {
			n = 2
		}
		for i := 0; i < n; i++ {
			pos := rapid.IntRange(0, len(parts)).Draw(t, "pos")
			parts = append(parts, "")
			copy(parts[pos+1:], parts[pos:])
			parts[pos] = ref
		}
	}
	return strings.Join(parts, " ")
}
