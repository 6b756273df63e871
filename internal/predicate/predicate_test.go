package predicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/results"
)

func sel(step string) ir.ResultSelector {
	return ir.ResultSelector{StepID: ir.StepID(step)}
}

func newSource(rs ...ir.StepResult) *results.Store {
	return results.FromResults("t", rs)
}

func TestBoolEquals(t *testing.T) {
	src := newSource(
		ir.StepResult{ID: "smoker", Answer: ir.Bool(true)},
		ir.StepResult{ID: "age", Answer: ir.Number(30)},
	)

	ok, err := BoolEquals{Selector: sel("smoker"), Expected: true}.Evaluate(src)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = BoolEquals{Selector: sel("smoker"), Expected: false}.Evaluate(src)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = BoolEquals{Selector: sel("missing"), Expected: true}.Evaluate(src)
	require.NoError(t, err)
	assert.False(t, ok, "absent answers never match")

	ok, err = BoolEquals{Selector: sel("age"), Expected: true}.Evaluate(src)
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))

	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, ir.KindBool, tm.Expected)
	assert.Equal(t, ir.KindNumber, tm.Actual)
}

func TestNumberRange(t *testing.T) {
	src := newSource(ir.StepResult{ID: "pain", Answer: ir.Number(7)})

	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"inside", NumberRange{Selector: sel("pain"), Min: Float(5), Max: Float(10)}, true},
		{"inclusive min", NumberRange{Selector: sel("pain"), Min: Float(7)}, true},
		{"inclusive max", NumberRange{Selector: sel("pain"), Max: Float(7)}, true},
		{"below", NumberRange{Selector: sel("pain"), Min: Float(8)}, false},
		{"above", NumberRange{Selector: sel("pain"), Max: Float(6)}, false},
		{"open", NumberRange{Selector: sel("pain")}, true},
		{"equals", NumberEquals{Selector: sel("pain"), Expected: 7}, true},
		{"not equals", NumberEquals{Selector: sel("pain"), Expected: 7.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.p.Evaluate(src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestTextPredicates(t *testing.T) {
	src := newSource(
		ir.StepResult{ID: "name", Answer: ir.Text("Ren\u00e9")},
		ir.StepResult{ID: "zip", Answer: ir.Text("94107")},
	)

	ok, err := TextEquals{Selector: sel("name"), Expected: "Rene\u0301"}.Evaluate(src)
	require.NoError(t, err)
	assert.True(t, ok, "comparison is NFC normalised")

	ok, err = TextMatches{Selector: sel("zip"), Pattern: `\d{5}`}.Evaluate(src)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = TextMatches{Selector: sel("zip"), Pattern: `\d{3}`}.Evaluate(src)
	require.NoError(t, err)
	assert.False(t, ok, "pattern must cover the whole answer")

	ok, err = TextMatches{Selector: sel("zip"), Pattern: `(`}.Evaluate(src)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestChoicePredicates(t *testing.T) {
	src := newSource(
		ir.StepResult{ID: "symptoms", Answer: ir.Choices{"cough", "fever"}},
		ir.StepResult{ID: "single", Answer: ir.Text("cough")},
		ir.StepResult{ID: "flag", Answer: ir.Bool(true)},
	)

	tests := []struct {
		name    string
		p       Predicate
		want    bool
		wantErr bool
	}{
		{"all included", ChoicesInclude{Selector: sel("symptoms"), Values: []string{"fever", "cough"}}, true, false},
		{"one missing", ChoicesInclude{Selector: sel("symptoms"), Values: []string{"fever", "rash"}}, false, false},
		{"text as single choice", ChoicesInclude{Selector: sel("single"), Values: []string{"cough"}}, true, false},
		{"pattern any", ChoiceMatches{Selector: sel("symptoms"), Pattern: "fev.*"}, true, false},
		{"pattern none", ChoiceMatches{Selector: sel("symptoms"), Pattern: "rash"}, false, false},
		{"wrong kind", ChoicesInclude{Selector: sel("flag"), Values: []string{"x"}}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.p.Evaluate(src)
			if tt.wantErr {
				assert.True(t, IsTypeMismatch(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestDateRange(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src := newSource(ir.StepResult{ID: "onset", Answer: ir.Date(day)})

	ok, err := DateRange{Selector: sel("onset"), Min: Time(day.AddDate(0, 0, -1)), Max: Time(day)}.Evaluate(src)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = DateRange{Selector: sel("onset"), Min: Time(day.AddDate(0, 0, 1))}.Evaluate(src)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSkippedAndAnswered(t *testing.T) {
	src := newSource(
		ir.StepResult{ID: "opt", Answer: ir.Skipped{}},
		ir.StepResult{ID: "req", Answer: ir.Number(1)},
	)

	ok, _ := IsSkipped{Selector: sel("opt")}.Evaluate(src)
	assert.True(t, ok)
	ok, _ = IsSkipped{Selector: sel("req")}.Evaluate(src)
	assert.False(t, ok)
	ok, _ = IsSkipped{Selector: sel("never")}.Evaluate(src)
	assert.False(t, ok)

	ok, _ = IsAnswered{Selector: sel("req")}.Evaluate(src)
	assert.True(t, ok)
	ok, _ = IsAnswered{Selector: sel("opt")}.Evaluate(src)
	assert.False(t, ok)
}

func TestTypedPredicatesIgnoreSkipped(t *testing.T) {
	src := newSource(ir.StepResult{ID: "opt", Answer: ir.Skipped{}})
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	preds := []Predicate{
		BoolEquals{Selector: sel("opt"), Expected: true},
		NumberRange{Selector: sel("opt"), Min: Float(0)},
		NumberEquals{Selector: sel("opt"), Expected: 0},
		TextEquals{Selector: sel("opt"), Expected: ""},
		TextMatches{Selector: sel("opt"), Pattern: ".*"},
		ChoicesInclude{Selector: sel("opt")},
		ChoiceMatches{Selector: sel("opt"), Pattern: ".*"},
		DateRange{Selector: sel("opt"), Min: Time(day)},
	}
	for _, p := range preds {
		t.Run(p.String(), func(t *testing.T) {
			ok, err := p.Evaluate(src)
			assert.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCompound(t *testing.T) {
	src := newSource(
		ir.StepResult{ID: "a", Answer: ir.Bool(true)},
		ir.StepResult{ID: "b", Answer: ir.Bool(false)},
		ir.StepResult{ID: "n", Answer: ir.Number(3)},
	)
	aTrue := BoolEquals{Selector: sel("a"), Expected: true}
	bTrue := BoolEquals{Selector: sel("b"), Expected: true}
	broken := BoolEquals{Selector: sel("n"), Expected: true}

	tests := []struct {
		name    string
		p       Predicate
		want    bool
		wantErr bool
	}{
		{"and true", And{aTrue, Not{Predicate: bTrue}}, true, false},
		{"and false", And{aTrue, bTrue}, false, false},
		{"empty and", And{}, true, false},
		{"or true", Or{bTrue, aTrue}, true, false},
		{"or false", Or{bTrue}, false, false},
		{"empty or", Or{}, false, false},
		{"or skips mismatch", Or{broken, aTrue}, true, false},
		{"or reports mismatch", Or{broken, bTrue}, false, true},
		{"and mismatch", And{aTrue, broken}, false, true},
		{"not mismatch stays false", Not{Predicate: broken}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.p.Evaluate(src)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestPredicateAcrossSubResults(t *testing.T) {
	src := newSource(ir.StepResult{ID: "form", Answer: ir.Collection{
		{ID: "severity", Answer: ir.Bool(true)},
	}})

	ok, err := BoolEquals{
		Selector: ir.ResultSelector{StepID: "form", SubResultID: "severity"},
		Expected: true,
	}.Evaluate(src)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestString(t *testing.T) {
	p := And{
		BoolEquals{Selector: sel("a"), Expected: true},
		Not{Predicate: NumberRange{Selector: sel("n"), Min: Float(1)}},
	}
	assert.Equal(t, "(a == true) and (not (n in [1, +inf]))", p.String())
}

func TestValidatePattern(t *testing.T) {
	assert.NoError(t, ValidatePattern(`[a-z]+`))
	assert.Error(t, ValidatePattern(`[`))
}
