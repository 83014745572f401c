package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/graph"
	"github.com/KilimcininKorOglu/vdx/internal/interpreter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/mapping/mappingtest"
)

func newAnalyzer(reg *mapping.Registry) *graph.Analyzer {
	a := graph.NewAnalyzer(interpreter.MustCEL())
	a.AnalyzeAll(reg)
	return a
}

func TestSourceFilter(t *testing.T) {
	user := mappingtest.Registry().Entry("user")
	users := user.Source("users")
	emails := user.Source("emails")

	tests := []struct {
		name   string
		source *mapping.SourceMapping
		filter string
		want   string
		exact  bool
	}{
		{"attribute variable", users, "(name=A)", "(name=A)", true},
		{"attribute of other source", emails, "(name=A)", "", false},
		{"substring keeps shape", emails, "(email=*@x.com)", "(email=*@x.com)", true},
		{"and drops foreign parts", users, "(&(name=A)(email=a@x.com))", "(name=A)", false},
		{"and fully local", users, "(&(name=A)(id>=2))", "(&(name=A)(id>=2))", true},
		{"or with foreign part", users, "(|(name=A)(email=a@x.com))", "", false},
		{"or fully local", users, "(|(name=A)(name=B))", "(|(name=A)(name=B))", true},
		{"not of exact", users, "(!(name=A))", "(!(name=A))", true},
		{"not of inexact", users, "(!(&(name=A)(email=x)))", "", false},
		{"computed attribute", users, "(cn=A #1)", "", false},
		{"field copy of attribute", users, "(userPassword=secret)", "(password=secret)", true},
		{"constant attribute", users, "(objectClass=person)", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, exact := SourceFilter(user, tt.source, filter.MustParse(tt.filter))
			assert.Equal(t, tt.want, filter.Simplify(got).String())
			assert.Equal(t, tt.exact, exact)
		})
	}
}

func TestSearchPlan(t *testing.T) {
	reg := mappingtest.Registry()
	planner := NewSearchPlanner(newAnalyzer(reg))
	user := reg.Entry("user")

	t.Run("filter on primary source", func(t *testing.T) {
		plan := planner.Plan(user, filter.MustParse("(name=A)"))

		assert.Equal(t, "users", plan.Primary)
		assert.Equal(t, "users", plan.Start)
		assert.Equal(t, []string{"users", "emails"}, plan.Order)

		users := plan.Source("users")
		assert.Equal(t, 0, users.Depth)
		assert.Equal(t, "(name=A)", users.Filter.String())

		emails := plan.Source("emails")
		assert.Equal(t, 1, emails.Depth)
		assert.Nil(t, emails.Filter, "emails is only reached through the join")

		rows := []*data.AttributeValues{data.FromMap(map[string][]string{
			"users.id":   {"1"},
			"users.name": {"A"},
		})}
		rels := []mapping.Relationship{plan.Graph.Edge("users", "emails").Relationships[0].Flip()}
		assert.Equal(t, "(user_id=1)", JoinFilter("emails", rels, rows).String())
	})

	t.Run("start moves to filtered source", func(t *testing.T) {
		plan := planner.Plan(user, filter.MustParse("(email=a@x.com)"))
		assert.Equal(t, "users", plan.Primary)
		assert.Equal(t, "emails", plan.Start)
		assert.Nil(t, plan.Source("users").Filter)
	})

	t.Run("negated filter on optional source keeps primary start", func(t *testing.T) {
		plan := planner.Plan(user, filter.MustParse("(!(email=a@x.com))"))
		assert.Equal(t, "users", plan.Start)
	})

	t.Run("connecting relationships carry depth", func(t *testing.T) {
		plan := planner.Plan(reg.Entry("mailbox"), nil)
		require.Len(t, plan.Connecting, 1)
		assert.Equal(t, "mailboxes", plan.Connecting[0].Source)
		assert.Equal(t, 0, plan.Connecting[0].Depth)
	})

	t.Run("static mapping", func(t *testing.T) {
		plan := planner.Plan(reg.Entry("users-ou"), nil)
		assert.Empty(t, plan.Primary)
		assert.Empty(t, plan.Sources)
	})
}

func TestPostFiltersAndLocal(t *testing.T) {
	src := func(alias string) *mapping.SourceMapping {
		return mapping.NewSourceMapping(alias, "s", &mapping.FieldMapping{Name: "id", Expression: mapping.Variable("id")})
	}
	literal, err := mapping.ParseRelationship("a.status = 'active'")
	require.NoError(t, err)
	em := &mapping.EntryMapping{
		ID:         "tri",
		ParentDN:   "dc=com",
		Attributes: []*mapping.AttributeMapping{{Name: "id", Expression: mapping.Variable("a.id"), RDN: true}},
		Sources:    []*mapping.SourceMapping{src("a"), src("b"), src("c")},
		Relationships: []mapping.Relationship{
			mapping.NewRelationship("a.id", "b.a_id"),
			mapping.NewRelationship("b.id", "c.b_id"),
			mapping.NewRelationship("c.x", "a.x"),
			mapping.NewRelationship("a.lo", "a.hi"),
			literal,
		},
	}
	em.Sources[0].Filter = filter.MustParse("(kind=person)")
	reg, err := mapping.NewRegistry([]*mapping.Source{{Name: "s"}}, []*mapping.EntryMapping{em})
	require.NoError(t, err)

	plan := NewSearchPlanner(newAnalyzer(reg)).Plan(em, nil)
	assert.Equal(t, []string{"c.x = a.x", "a.lo = a.hi"}, relStrings(plan.PostFilters))
	assert.Equal(t, plan.PostFilters, plan.PostFiltersFrom(plan.Start))
	fromB := relStrings(plan.PostFiltersFrom("b"))
	assert.Len(t, fromB, 2)
	assert.Contains(t, fromB, "a.lo = a.hi")
	assert.Equal(t, "(&(kind=person)(status=active))", plan.Source("a").Effective().String())
	assert.Nil(t, plan.Source("b").Effective())
	assert.Equal(t, 2, plan.Source("c").Depth)

	exec := NewExecutionPlanner(newAnalyzer(reg)).Plan(em)
	assert.Equal(t, []string{"a", "b", "c"}, exec.Order)
	assert.Equal(t, "b", exec.DependsOn("c"))
	assert.Empty(t, exec.DependsOn("a"))
	assert.Len(t, exec.Joins, 4)
	assert.Equal(t, []string{"a.status = 'active'"}, relStrings(exec.Filters))
	assert.Equal(t, []string{"a.status = 'active'"}, relStrings(exec.Literals("a")))
	assert.Empty(t, exec.Literals("b"))
}

func relStrings(rels []mapping.Relationship) []string {
	var out []string
	for _, r := range rels {
		out = append(out, r.String())
	}
	return out
}

func TestExecutionPlanConnecting(t *testing.T) {
	reg := mappingtest.Registry()
	exec := NewExecutionPlanner(newAnalyzer(reg)).Plan(reg.Entry("mailbox"))
	assert.Empty(t, exec.Joins)
	assert.Equal(t, []string{"mailboxes.user_id = users.id"}, relStrings(exec.Filters))
	assert.Equal(t, []string{"mailboxes"}, exec.Order)

	user := NewExecutionPlanner(newAnalyzer(reg)).Plan(reg.Entry("user"))
	assert.Equal(t, []string{"users", "emails"}, user.Order)
	assert.Equal(t, "users", user.DependsOn("emails"))
}

func TestJoinFilter(t *testing.T) {
	rows := []*data.AttributeValues{
		data.FromMap(map[string][]string{"users.id": {"1", "2"}}),
		data.FromMap(map[string][]string{"users.id": {"1"}}),
		data.FromMap(map[string][]string{"users.name": {"x"}}),
	}
	rels := []mapping.Relationship{mapping.NewRelationship("emails.user_id", "users.id")}

	assert.Equal(t, "(|(user_id=1)(user_id=2))", JoinFilter("emails", rels, rows).String())
	assert.Equal(t, "(user_id=1)", JoinFilter("emails", rels, rows[1:]).String())
	assert.Nil(t, JoinFilter("emails", rels, rows[2:]))
	assert.Nil(t, JoinFilter("other", rels, rows))
}

func TestComparisonAndKeys(t *testing.T) {
	assert.Equal(t, "(f=1)", Comparison("f", mapping.OpEqual, "1").String())
	assert.Equal(t, "(!(f=1))", Comparison("f", mapping.OpNotEqual, "1").String())
	assert.Equal(t, "(f>=1)", Comparison("f", mapping.OpGreaterEqual, "1").String())
	assert.Equal(t, "(&(f>=1)(!(f=1)))", Comparison("f", mapping.OpGreater, "1").String())
	assert.Equal(t, "(&(f<=1)(!(f=1)))", Comparison("f", mapping.OpLess, "1").String())

	keys := []data.Row{data.RowOf("id", "1"), data.RowOf("email", "a", "user_id", "1")}
	assert.Equal(t, "(|(id=1)(&(email=a)(user_id=1)))", KeyFilter(keys).String())
	assert.Nil(t, KeyFilter(nil))
}

func TestPositive(t *testing.T) {
	assert.True(t, Positive(filter.MustParse("(a=1)")))
	assert.True(t, Positive(filter.MustParse("(&(a=1)(!(b=2)))")))
	assert.False(t, Positive(filter.MustParse("(|(a=1)(!(b=2)))")))
	assert.False(t, Positive(filter.MustParse("(!(a=1))")))
	assert.False(t, Positive(nil))
}

func TestSearchCleaner(t *testing.T) {
	reg := mappingtest.Registry()
	plan := NewSearchPlanner(newAnalyzer(reg)).Plan(reg.Entry("user"), nil)
	plan.Connecting = []Connecting{{Source: "users", Depth: 0}}

	rows := []*data.AttributeValues{data.FromMap(map[string][]string{
		"users.id":       {"1"},
		"emails.email":   {"a@x.com"},
		"parent.ou":      {"users"},
		"unqualified":    {"v"},
		"emails.user_id": {"1"},
	})}

	cleaner := NewSearchCleaner(plan)
	assert.Equal(t, 0, cleaner.MaxDepth())
	cleaned := cleaner.Clean(rows)
	assert.Equal(t, []string{"parent.ou", "unqualified", "users.id"}, cleaned[0].Names())
	assert.Equal(t, 5, rows[0].Len(), "input untouched")
}
