package document

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	raw := []byte(`{
		"name": "lead-capture",
		"nodes": [
			{"type": "webhook", "parameters": {"path": "{{path}}", "limit": 25, "active": true}},
			{"type": "email", "parameters": {"to": null}}
		]
	}`)

	v, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, KindMapping, v.Kind())

	nodes, ok := v.Get("nodes")
	require.True(t, ok)
	assert.Equal(t, KindSequence, nodes.Kind())
	require.Len(t, nodes.Seq(), 2)

	params, ok := nodes.Seq()[0].Get("parameters")
	require.True(t, ok)
	limit, ok := params.Get("limit")
	require.True(t, ok)
	assert.Equal(t, KindNumber, limit.Kind())
	assert.Equal(t, 25.0, limit.Num())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	assert.True(t, v.Equal(again))
}

func TestParse_RejectsPathologicalDepth(t *testing.T) {
	raw := strings.Repeat("[", MaxDepth+2) + strings.Repeat("]", MaxDepth+2)
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestFromAny_DepthBound(t *testing.T) {
	deep := any("leaf")
	for i := 0; i < MaxDepth+1; i++ {
		deep = []any{deep}
	}
	_, err := FromAny(deep)
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestFromAny_IntegerKinds(t *testing.T) {
	v, err := FromAny(map[string]any{"a": 7, "b": int64(9), "c": json.Number("3.5")})
	require.NoError(t, err)

	a, _ := v.Get("a")
	assert.Equal(t, 7.0, a.Num())
	b, _ := v.Get("b")
	assert.Equal(t, 9.0, b.Num())
	c, _ := v.Get("c")
	assert.Equal(t, 3.5, c.Num())
}

func TestFromAny_UnsupportedType(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"string", String("hello"), "hello"},
		{"integer number", Number(50), "50"},
		{"fractional number", Number(2.5), "2.5"},
		{"bool", Bool(true), "true"},
		{"null", Null(), ""},
		{"sequence", Sequence(Number(1), Number(2)), "[1,2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Stringify())
		})
	}
}

func TestEqual(t *testing.T) {
	a := Mapping(map[string]Value{"x": Sequence(Number(1), String("two"))})
	b := Mapping(map[string]Value{"x": Sequence(Number(1), String("two"))})
	c := Mapping(map[string]Value{"x": Sequence(Number(1), String("three"))})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Null()))
	assert.True(t, Null().Equal(Value{}))
}

func TestClone_Isolation(t *testing.T) {
	orig := Mapping(map[string]Value{
		"nodes": Sequence(Mapping(map[string]Value{"path": String("a")})),
	})
	clone := orig.Clone()

	nodes, _ := clone.Get("nodes")
	nodes.Seq()[0].Map()["path"] = String("mutated")

	origNodes, _ := orig.Get("nodes")
	origPath, _ := origNodes.Seq()[0].Get("path")
	assert.Equal(t, "a", origPath.Str())
}

func TestUnmarshalJSON_Field(t *testing.T) {
	var payload struct {
		Definition Value `json:"definition"`
	}
	err := json.Unmarshal([]byte(`{"definition": {"nodes": []}}`), &payload)
	require.NoError(t, err)
	assert.Equal(t, KindMapping, payload.Definition.Kind())
}
