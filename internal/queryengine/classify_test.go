package queryengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want Kind
	}{
		{"select", "select * from users", KindSelect},
		{"insert", "insert into users (id) values (1)", KindModifyData},
		{"update", "UPDATE users SET name = 'a'", KindModifyData},
		{"delete", "delete from users", KindModifyData},
		{"create table", "create table t (id int)", KindModifyStructure},
		{"alter table", "ALTER TABLE t ADD COLUMN x int", KindModifyStructure},
		{"drop table", "drop table t", KindModifyStructure},
		{"truncate", "truncate t", KindModifyStructure},
		{"comment", "comment on table t is 'x'", KindModifyStructure},
		{"explain", "explain select 1", KindExplain},
		{"explain analyze", "explain analyze select 1", KindExplain},
		{"with cte falls through to select", "with q as (select 1) select * from q", KindSelect},
		{"leading whitespace and newlines", "\n\n  insert into t values (1)", KindModifyData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.sql)
			assert.Equal(t, tt.want, got)
			// Idempotent: classifying twice agrees.
			assert.Equal(t, got, Classify(tt.sql))
		})
	}
}

func TestClassify_TokenIdentityNotPosition(t *testing.T) {
	// A column or table literally named "update" must not be mistaken for
	// the keyword unless it appears as its own token.
	got := Classify(`select "update" from t`)
	assert.Equal(t, KindSelect, got)
}
