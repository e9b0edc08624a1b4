package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateQueryText(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantKind ValidationKind
	}{
		{name: "simple select", query: "SELECT 1"},
		{name: "quoted literal", query: "SELECT * FROM t WHERE name = 'alice'"},
		{name: "doubled quote escape", query: "SELECT 'it''s fine'"},
		{name: "bracketed identifier", query: "SELECT [Order Details].id FROM [Order Details]"},
		{name: "double quoted identifier", query: `SELECT "name" FROM t`},
		{name: "apostrophe in line comment", query: "SELECT 1 -- don't break"},
		{name: "apostrophe in block comment", query: "/* it's a note */ SELECT 1"},
		{name: "nested block comment", query: "/* outer /* it's inner */ still */ SELECT 1"},
		{name: "comment between statements", query: "SELECT 1\n-- can't touch this\nSELECT 2"},
		{name: "comment markers inside literal", query: "SELECT '-- not a comment /*'"},
		{name: "empty", query: "", wantKind: ValidationEmptyQuery},
		{name: "whitespace only", query: "   \n\t ", wantKind: ValidationEmptyQuery},
		{name: "unterminated single quote", query: "SELECT 'oops", wantKind: ValidationUnbalancedQuote},
		{name: "unterminated double quote", query: `SELECT "oops`, wantKind: ValidationUnbalancedQuote},
		{name: "unterminated bracket", query: "SELECT [oops FROM t", wantKind: ValidationUnbalancedQuote},
		{name: "quote closed by escape only", query: "SELECT 'a''", wantKind: ValidationUnbalancedQuote},
		{name: "unterminated quote after comment", query: "-- note\nSELECT 'oops", wantKind: ValidationUnbalancedQuote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQueryText(tt.query)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantKind, validationErr.Kind)
		})
	}
}

func TestValidateSelection(t *testing.T) {
	t.Run("valid selection", func(t *testing.T) {
		err := ValidateSelection([]Target{
			{ID: "t1", Database: "db1"},
			{ID: "t2", Database: "db2"},
		})
		assert.NoError(t, err)
	})

	t.Run("empty selection", func(t *testing.T) {
		var validationErr *ValidationError
		require.ErrorAs(t, ValidateSelection(nil), &validationErr)
		assert.Equal(t, ValidationNoTargetSelected, validationErr.Kind)
	})

	t.Run("duplicate target id", func(t *testing.T) {
		err := ValidateSelection([]Target{
			{ID: "t1", Database: "db1"},
			{ID: "t1", Database: "db2"},
		})
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, ValidationDuplicateTarget, validationErr.Kind)
	})
}

func TestSplitBatches(t *testing.T) {
	t.Run("no separator", func(t *testing.T) {
		assert.Equal(t, []string{"SELECT 1"}, SplitBatches("SELECT 1"))
	})

	t.Run("go separators", func(t *testing.T) {
		batches := SplitBatches("SELECT 1\nGO\nSELECT 2\ngo\nSELECT 3")
		assert.Equal(t, []string{"SELECT 1", "SELECT 2", "SELECT 3"}, batches)
	})

	t.Run("go with surrounding whitespace", func(t *testing.T) {
		batches := SplitBatches("SELECT 1\n  GO  \nSELECT 2")
		assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, batches)
	})

	t.Run("trailing and empty batches dropped", func(t *testing.T) {
		batches := SplitBatches("SELECT 1\nGO\nGO\nSELECT 2\nGO\n")
		assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, batches)
	})

	t.Run("go inside a statement is not a separator", func(t *testing.T) {
		batches := SplitBatches("SELECT * FROM cargo WHERE name = 'GO fast'")
		assert.Len(t, batches, 1)
	})
}
