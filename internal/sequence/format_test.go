package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchconsole/internal/apperror"
)

func TestFormatName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Pumps", "PUMPS"},
		{"Pumps (Heavy)", "PUMPS-(HEAVY)"},
		{"  heavy   duty  ", "HEAVY-DUTY"},
		{"Semi-Trailer", "SEMI-TRAILER"},
		{"A - B", "A-B"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatName(tt.in), "FormatName(%q)", tt.in)
	}
}

func TestLegacySlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Pumps (Heavy)", "PUMPS-HEAVY"},
		{"Semi-Trailer", "SEMITRAILER"},
		{"Valves & Fittings", "VALVES-FITTINGS"},
		{"()", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LegacySlug(tt.in), "LegacySlug(%q)", tt.in)
	}
}

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{"sequence and category", "{sequence}-{category}", false},
		{"all placeholders", "{prefix}-{category}-{subcategory}-{sequence}", false},
		{"missing sequence", "{category}-{subcategory}", true},
		{"missing category", "{prefix}-{sequence}", true},
		{"empty", "   ", true},
		{"unknown placeholder", "{sequence}-{category}-{year}", true},
		{"sequence twice", "{sequence}-{category}-{sequence}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTemplate(tt.template)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.KindInvalidTemplate))
		})
	}
}

func TestValidatePrefix(t *testing.T) {
	assert.NoError(t, ValidatePrefix("PMP"))
	assert.NoError(t, ValidatePrefix("PMP-2"))
	for _, bad := range []string{"", "pmp", "PMP_1", "ABCDEFGHIJK"} {
		err := ValidatePrefix(bad)
		require.Error(t, err, bad)
		assert.True(t, apperror.Is(err, apperror.KindValidation), bad)
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   Values
		want     string
	}{
		{
			name:     "padded counter",
			template: "{sequence}-{category}",
			values:   Values{Names: Names{Category: "Pumps"}, Number: 1},
			want:     "001-PUMPS",
		},
		{
			name:     "seven",
			template: "{sequence}-{category}",
			values:   Values{Names: Names{Category: "Pumps"}, Number: 7},
			want:     "007-PUMPS",
		},
		{
			name:     "wider than padding",
			template: "{sequence}-{category}",
			values:   Values{Names: Names{Category: "Pumps"}, Number: 1234},
			want:     "1234-PUMPS",
		},
		{
			name:     "subcategory present",
			template: "{sequence}-{category}-{subcategory}",
			values:   Values{Names: Names{Category: "Pumps", Subcategory: "Valves"}, Number: 1},
			want:     "001-PUMPS-VALVES",
		},
		{
			name:     "subcategory absent collapses separator",
			template: "{sequence}-{subcategory}-{category}",
			values:   Values{Names: Names{Category: "Pumps"}, Number: 2},
			want:     "002-PUMPS",
		},
		{
			name:     "trailing subcategory absent",
			template: "{sequence}-{category}-{subcategory}",
			values:   Values{Names: Names{Category: "Pumps"}, Number: 3},
			want:     "003-PUMPS",
		},
		{
			name:     "punctuation preserved",
			template: "{category}/{sequence}",
			values:   Values{Names: Names{Category: "Pumps (Heavy)"}, Number: 12},
			want:     "PUMPS-(HEAVY)/012",
		},
		{
			name:     "prefix",
			template: "{prefix}-{category}-{sequence}",
			values:   Values{Names: Names{Prefix: "PMP", Category: "Pumps"}, Number: 5},
			want:     "PMP-PUMPS-005",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := Render(tt.template, tt.values)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestRenderErrors(t *testing.T) {
	_, err := Render("{category}", Values{Names: Names{Category: "Pumps"}, Number: 1})
	assert.True(t, apperror.Is(err, apperror.KindInvalidTemplate))

	_, err = Render("{sequence}-{category}", Values{Number: 1})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = Render("{sequence}-{category}", Values{Names: Names{Category: "Pumps"}, Number: -1})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestValidateBothSchemes(t *testing.T) {
	const template = "{sequence}-{category}"
	names := Names{Category: "Pumps (Heavy)"}

	current, err := Render(template, Values{Names: names, Number: 4})
	require.NoError(t, err)
	require.Equal(t, "004-PUMPS-(HEAVY)", current)

	scheme, ok := MatchedScheme(current, template, names)
	require.True(t, ok)
	assert.Equal(t, SchemeCurrent, scheme)

	scheme, ok = MatchedScheme("004-PUMPS-HEAVY", template, names)
	require.True(t, ok, "legacy slug sequence must still validate")
	assert.Equal(t, SchemeLegacy, scheme)

	assert.False(t, Validate("004-PUMPS-LIGHT", template, names))
	assert.False(t, Validate("PUMPS-HEAVY-004", template, names))
	assert.False(t, Validate("", template, names))
}

func TestValidateCases(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		template  string
		names     Names
		want      bool
	}{
		{"case insensitive", "001-pumps", "{sequence}-{category}", Names{Category: "Pumps"}, true},
		{"surrounding spaces", "  001-PUMPS ", "{sequence}-{category}", Names{Category: "Pumps"}, true},
		{"wrong category", "001-VALVES", "{sequence}-{category}", Names{Category: "Pumps"}, false},
		{"non numeric sequence", "ABC-PUMPS", "{sequence}-{category}", Names{Category: "Pumps"}, false},
		{"regex chars escaped", "001-A+B", "{sequence}-{category}", Names{Category: "A+B"}, true},
		{"regex chars not a pattern", "001-AAB", "{sequence}-{category}", Names{Category: "A+B"}, false},
		{"subcategory unknown, rendered with one", "001-PUMPS-VALVES", "{sequence}-{category}-{subcategory}", Names{Category: "Pumps"}, true},
		{"subcategory unknown, rendered without", "001-PUMPS", "{sequence}-{category}-{subcategory}", Names{Category: "Pumps"}, true},
		{"leading subcategory unknown", "001-PUMPS", "{subcategory}-{sequence}-{category}", Names{Category: "Pumps"}, true},
		{"subcategory known must match", "001-PUMPS-GEARS", "{sequence}-{category}-{subcategory}", Names{Category: "Pumps", Subcategory: "Valves"}, false},
		{"prefix known", "PMP-001-PUMPS", "{prefix}-{sequence}-{category}", Names{Prefix: "PMP", Category: "Pumps"}, true},
		{"prefix mismatch", "XYZ-001-PUMPS", "{prefix}-{sequence}-{category}", Names{Prefix: "PMP", Category: "Pumps"}, false},
		{"invalid template never validates", "001-PUMPS", "{category}", Names{Category: "Pumps"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.candidate, tt.template, tt.names))
		})
	}
}

func TestRenderedSequencesValidate(t *testing.T) {
	templates := []string{
		"{sequence}-{category}",
		"{sequence}-{category}-{subcategory}",
		"{prefix}/{category}/{subcategory}/{sequence}",
		"{category}{sequence}",
	}
	scopes := []Names{
		{Prefix: "PMP", Category: "Pumps"},
		{Prefix: "PMP", Category: "Pumps (Heavy)", Subcategory: "Valves & Fittings"},
		{Prefix: "GR-1", Category: "gear  boxes", Subcategory: "Semi-Trailer"},
	}
	for _, tmpl := range templates {
		for _, names := range scopes {
			got, err := Render(tmpl, Values{Names: names, Number: 42})
			require.NoError(t, err)
			assert.True(t, Validate(got, tmpl, names), "%q rendered from %q", got, tmpl)

			n, ok := ExtractNumber(got, tmpl, names)
			require.True(t, ok, got)
			assert.Equal(t, 42, n)
		}
	}
}

func TestExtractNumberLegacy(t *testing.T) {
	n, ok := ExtractNumber("017-PUMPS-HEAVY", "{sequence}-{category}", Names{Category: "Pumps (Heavy)"})
	require.True(t, ok)
	assert.Equal(t, 17, n)

	_, ok = ExtractNumber("017-VALVES", "{sequence}-{category}", Names{Category: "Pumps"})
	assert.False(t, ok)
}
