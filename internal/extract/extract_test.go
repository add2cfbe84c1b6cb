package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"closedfn/internal/syntax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFixture(t *testing.T, name string) *syntax.Unit {
	t.Helper()
	path := filepath.Join("testdata", name)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return parseText(t, path, string(content))
}

func parseText(t *testing.T, path, text string) *syntax.Unit {
	t.Helper()
	unit, err := syntax.Parse(context.Background(), path, []byte(text))
	require.NoError(t, err)
	t.Cleanup(unit.Close)
	return unit
}

func TestExtract_SingleClosed(t *testing.T) {
	unit := parseFixture(t, "module-with-closed.ts")

	res, err := Extract(unit)
	require.NoError(t, err)

	require.Len(t, res.Imports, 2)
	assert.Equal(t, "./module-to-import", res.Imports[0].Specifier)
	assert.Equal(t, "import './side-effect'", res.Imports[1].Text)

	require.NotNil(t, res.Function)
	fn := res.Function
	assert.Equal(t, "function_declaration", fn.Kind)
	assert.Equal(t, "closedFunction", fn.Name)
	assert.True(t, strings.HasPrefix(fn.Text, "function closedFunction(timestamp: number)"))

	body := string(unit.Source[fn.Body.Start:fn.Body.End])
	assert.True(t, strings.HasPrefix(body, "{"))
	assert.True(t, strings.HasSuffix(body, "}"))
	assert.Contains(t, body, "return getMonth(timestamp)")
	assert.Equal(t, "(timestamp: number)", string(unit.Source[fn.Params.Start:fn.Params.End]))
}

func TestExtract_TwoMarkers(t *testing.T) {
	unit := parseFixture(t, "module-with-2-closed.ts")

	_, err := Extract(unit)
	require.Error(t, err)

	var se *StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, msgDuplicate, se.Msg)
	assert.Equal(t, 10, se.Line)
}

func TestExtract_NotSoleStatement(t *testing.T) {
	unit := parseFixture(t, "module-with-no-single-closed-statement.ts")

	_, err := Extract(unit)

	var se *StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, msgNotSole, se.Msg)
}

func TestExtract_NoMarker(t *testing.T) {
	unit := parseFixture(t, "module-to-import.ts")

	res, err := Extract(unit)
	require.NoError(t, err)
	assert.Nil(t, res.Function)
	assert.Empty(t, res.Imports)
}

func TestExtract_Placement(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		kind    string
		wantErr bool
	}{
		{
			name: "top level label",
			src:  "$closed: {\n  console.log(1)\n}\n",
			wantErr: true,
		},
		{
			name:    "inside if block",
			src:     "function f() {\n  if (true) {\n    $closed: { return 1 }\n  }\n}\n",
			wantErr: true,
		},
		{
			name: "comment beside marker is not a statement",
			src:  "function f() {\n  // isolated\n  $closed: { return 1 }\n}\n",
			kind: "function_declaration",
		},
		{
			name: "arrow function",
			src:  "export const f = (a: number) => {\n  $closed: { return a }\n}\n",
			kind: "arrow_function",
		},
		{
			name: "class method",
			src:  "class C {\n  async run(x) {\n    $closed: { return x }\n  }\n}\n",
			kind: "method_definition",
		},
		{
			name: "function expression",
			src:  "export default function (x) {\n  $closed: { return x }\n}\n",
			kind: "function_declaration",
		},
		{
			name: "other labels are ignored",
			src:  "function f() {\n  outer: for (;;) { break outer }\n}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Extract(parseText(t, "case.ts", tt.src))
			if tt.wantErr {
				var se *StructuralError
				assert.ErrorAs(t, err, &se)
				return
			}
			require.NoError(t, err)
			if tt.kind == "" {
				assert.Nil(t, res.Function)
				return
			}
			require.NotNil(t, res.Function)
			// Anonymous default exports parse as either a declaration or an expression
			// depending on grammar version.
			if tt.kind == "function_declaration" && res.Function.Kind != tt.kind {
				assert.Contains(t, []string{"function", "function_expression"}, res.Function.Kind)
			} else {
				assert.Equal(t, tt.kind, res.Function.Kind)
			}
		})
	}
}

func TestExtract_MethodModifiers(t *testing.T) {
	res, err := Extract(parseText(t, "m.ts", "class C {\n  async *run<T>(x: T) {\n    $closed: { yield x }\n  }\n}\n"))
	require.NoError(t, err)
	require.NotNil(t, res.Function)

	fn := res.Function
	assert.True(t, fn.IsMethod())
	assert.True(t, fn.Async)
	assert.True(t, fn.Generator)
	assert.Equal(t, "run", fn.Name)
}

func TestHasMarker(t *testing.T) {
	assert.True(t, HasMarker([]byte("function f() {\n\t$closed: {\n\t}\n}")))
	assert.True(t, HasMarker([]byte("  $closed :{")))
	assert.False(t, HasMarker([]byte("const s = '$closed: {'")))
	assert.False(t, HasMarker([]byte("export const x = 1\n")))
}
