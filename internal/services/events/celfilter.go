package eventsvc

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/evstore/pkg/events"
)

// celFilter wraps a compiled CEL program evaluated against each event of a
// read window. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("index", cel.IntType),
		cel.Variable("name", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("user", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("has_user", cel.BoolType),
		cel.Variable("has_source", cel.BoolType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON payload for field filtering
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return celFilter{}, invalid("filter must evaluate to bool, got %s", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval reports whether ev matches. Evaluation errors count as no match.
func (f celFilter) Eval(ev *events.IndexedEvent) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(ev.Payload, &jsonObj)
	var user, source string
	if ev.User != nil {
		user = *ev.User
	}
	if ev.Source != nil {
		source = *ev.Source
	}
	out, _, err := f.prog.Eval(map[string]any{
		"index":      int64(ev.Index),
		"name":       ev.Name,
		"ts_ms":      int64(ev.Timestamp),
		"user":       user,
		"source":     source,
		"has_user":   ev.User != nil,
		"has_source": ev.Source != nil,
		"size":       int64(len(ev.Payload)),
		"text":       string(ev.Payload),
		"json":       jsonObj,
		"now_ms":     time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
