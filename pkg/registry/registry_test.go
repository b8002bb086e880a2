package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeAnyTrimsWhitespace(t *testing.T) {
	r := New()
	got, err := r.Canonicalize("domain", "  g  ")
	assert.NoError(t, err)
	assert.Equal(t, "g", got)
}

func TestCanonicalizeDateLiteral(t *testing.T) {
	r := New()
	r.Bind("date", TypeDate)
	got, err := r.Canonicalize("date", "20120911")
	assert.NoError(t, err)
	assert.Equal(t, "20120911", got)
}

func TestCanonicalizeDateInvalidCalendarDate(t *testing.T) {
	r := New()
	r.Bind("date", TypeDate)
	_, err := r.Canonicalize("date", "20120231")
	assert.Error(t, err, "want error for Feb 31")
}

func TestCanonicalizeDateRelative(t *testing.T) {
	r := New()
	r.Bind("date", TypeDate)
	r.clock = func() time.Time { return time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC) }

	got, err := r.Canonicalize("date", "0")
	assert.NoError(t, err)
	assert.Equal(t, "20260729", got, "today")

	got, err = r.Canonicalize("date", "-1")
	assert.NoError(t, err)
	assert.Equal(t, "20260728", got, "yesterday")
}

func TestCanonicalizeTimeNormalizesToHHMM(t *testing.T) {
	r := New()
	r.Bind("time", TypeTime)
	cases := map[string]string{
		"0":    "0000",
		"0000": "0000",
		"12":   "1200",
		"1200": "1200",
	}
	for in, want := range cases {
		got, err := r.Canonicalize("time", in)
		assert.NoErrorf(t, err, "Canonicalize(%q)", in)
		assert.Equalf(t, want, got, "Canonicalize(%q)", in)
	}
}

func TestCanonicalizeTimeOutOfRange(t *testing.T) {
	r := New()
	r.Bind("time", TypeTime)
	_, err := r.Canonicalize("time", "2400")
	assert.Error(t, err, "want range error")
}

func TestCanonicalizeParamAlias(t *testing.T) {
	r := New()
	r.Bind("param", TypeParam)
	r.BindParamAlias("2t", "167")

	got, err := r.Canonicalize("param", "2t")
	assert.NoError(t, err)
	assert.Equal(t, "167", got)

	got, err = r.Canonicalize("param", "167")
	assert.NoError(t, err)
	assert.Equal(t, "167", got, "passthrough")
}

func TestCanonicalizeStepBareInteger(t *testing.T) {
	got, err := CanonicalizeStep("2", "")
	assert.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestCanonicalizeStepWithUnits(t *testing.T) {
	got, err := CanonicalizeStep("2", "h")
	assert.NoError(t, err)
	assert.Equal(t, "2", got, "hours drop the suffix")

	got, err = CanonicalizeStep("30", "m")
	assert.NoError(t, err)
	assert.Equal(t, "30m", got)
}

func TestCanonicalizeStepAlreadySuffixed(t *testing.T) {
	got, err := CanonicalizeStep("30m", "")
	assert.NoError(t, err)
	assert.Equal(t, "30m", got)
}

func TestCanonicalizeStepInvalid(t *testing.T) {
	_, err := CanonicalizeStep("not-a-step", "")
	assert.Error(t, err)
}
