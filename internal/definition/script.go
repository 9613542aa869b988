package definition

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"
)

const teamScriptFuncName = "TeamDefinitions"

// LoadTeamScript interprets a Go source file declaring
//
//	func TeamDefinitions() ([]map[string]any, error)
//
// and parses every returned map as a team document. name is the script's file
// stem. It identifies the script in errors and supplies the id of a team that
// carries no bundle.id: name itself for a lone team, name-N otherwise.
func LoadTeamScript(name string, src []byte) ([]*Team, error) {
	if len(strings.TrimSpace(string(src))) == 0 {
		return nil, fmt.Errorf("definition: %s is empty", name)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("definition: %s: load stdlib: %w", name, err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("definition: interpret %s: %w", name, err)
	}
	fnValue, err := i.Eval(teamScriptFuncName)
	if err != nil {
		return nil, fmt.Errorf("definition: %s must define %s() ([]map[string]any, error): %w", name, teamScriptFuncName, err)
	}
	raw, err := invokeScriptFunc(fnValue)
	if err != nil {
		return nil, fmt.Errorf("definition: %s: %w", name, err)
	}
	teams := make([]*Team, 0, len(raw))
	for idx, entry := range raw {
		payload, err := yaml.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("definition: %s team[%d]: %w", name, idx, err)
		}
		fallback := name
		if len(raw) > 1 {
			fallback = fmt.Sprintf("%s-%d", name, idx+1)
		}
		team, err := ParseTeam(fallback, string(payload))
		if err != nil {
			return nil, fmt.Errorf("definition: %s team[%d]: %w", name, idx, err)
		}
		teams = append(teams, team)
	}
	return teams, nil
}

func invokeScriptFunc(value reflect.Value) ([]map[string]any, error) {
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", teamScriptFuncName)
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return ([]map[string]any[, error])", teamScriptFuncName)
	}
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok {
			return nil, e
		}
		return nil, fmt.Errorf("%s returned non-error second value", teamScriptFuncName)
	}
	out := results[0]
	if defs, ok := out.Interface().([]map[string]any); ok {
		return defs, nil
	}
	if out.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%s must return []map[string]any", teamScriptFuncName)
	}
	defs := make([]map[string]any, out.Len())
	for idx := 0; idx < out.Len(); idx++ {
		m, ok := out.Index(idx).Interface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not map[string]any", teamScriptFuncName, idx)
		}
		defs[idx] = m
	}
	return defs, nil
}
