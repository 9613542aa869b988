package definition

import (
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/resource"
)

const pmDocument = "# pm\n\nACTIVATION-NOTICE: read the block below.\n\n" +
	"```yaml\n" +
	"IDE-FILE-RESOLUTION:\n" +
	"  - Dependencies map to {root}/{type}/{name}\n" +
	"activation-instructions:\n" +
	"  - STEP 1: Read this file\n" +
	"agent:\n" +
	"  name: John\n" +
	"  id: pm\n" +
	"  title: Product Manager\n" +
	"  icon: 📋\n" +
	"  whenToUse: Use for PRDs\n" +
	"commands:\n" +
	"  - help: Show numbered list of commands\n" +
	"  - create-prd - run task create-doc.md with template prd-tmpl.yaml\n" +
	"  - exit\n" +
	"dependencies:\n" +
	"  tasks:\n" +
	"    - create-doc.md\n" +
	"  templates:\n" +
	"    - prd-tmpl.yaml\n" +
	"  data:\n" +
	"    - technical-preferences\n" +
	"```\n\nTrailing prose.\n"

func TestParseAgent(t *testing.T) {
	agent, err := ParseAgent(pmDocument)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if agent.ID != "pm" || agent.Name != "John" || agent.Title != "Product Manager" {
		t.Fatalf("unexpected identity %+v", agent)
	}
	if agent.Description != "Use for PRDs" {
		t.Fatalf("description should come from whenToUse, got %q", agent.Description)
	}
	if !strings.HasPrefix(agent.ConfigBlock, "IDE-FILE-RESOLUTION:") || strings.Contains(agent.ConfigBlock, "```") {
		t.Fatalf("config block not extracted verbatim:\n%s", agent.ConfigBlock)
	}
	want := map[resource.Type][]string{
		resource.TypeTask:     {"create-doc.md"},
		resource.TypeTemplate: {"prd-tmpl.yaml"},
		resource.TypeData:     {"technical-preferences"},
	}
	if !reflect.DeepEqual(agent.Dependencies, want) {
		t.Fatalf("dependencies = %v", agent.Dependencies)
	}
	if got := agent.Triggers(); !reflect.DeepEqual(got, []string{"help", "create-prd", "exit"}) {
		t.Fatalf("triggers = %v", got)
	}
	if agent.Commands[1].Description != "run task create-doc.md with template prd-tmpl.yaml" {
		t.Fatalf("unexpected description %q", agent.Commands[1].Description)
	}
	if !agent.Declares(resource.NewReference(resource.TypeTask, "create-doc")) {
		t.Fatalf("expected pm to declare task#create-doc")
	}
}

func TestParseAgentWithQuotedTriggerDescriptions(t *testing.T) {
	doc := "```yml\r\nagent:\r\n  id: dev\r\n  name: James\r\ncommands:\r\n  - \"help\" - Show help\r\n  - \"run-tests\" - Execute linting and tests\r\n```\r\n"
	agent, err := ParseAgent(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := agent.Triggers(); !reflect.DeepEqual(got, []string{"help", "run-tests"}) {
		t.Fatalf("triggers = %v", got)
	}
}

func TestParseAgentMalformed(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"no block", "# Just prose\nNothing structured here.", ""},
		{"missing id", "```yaml\nagent:\n  name: Nameless\n```", "agent.id"},
		{"missing name", "```yaml\nagent:\n  id: ghost\n```", "agent.name"},
		{"bad yaml", "```yaml\nagent: [unterminated\n```", ""},
		{"unknown dependency type", "```yaml\nagent:\n  id: a\n  name: A\ndependencies:\n  spells:\n    - fireball\n```", "dependencies"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAgent(tc.doc)
			if !apperrors.Is(err, apperrors.ErrMalformedDefinition) {
				t.Fatalf("expected malformed definition, got %v", err)
			}
			var malformed *apperrors.MalformedDefinitionError
			if !apperrors.As(err, &malformed) || malformed.Field != tc.field {
				t.Fatalf("expected field %q, got %+v", tc.field, malformed)
			}
		})
	}
}

func TestStripCommandDescriptions(t *testing.T) {
	block := strings.Join([]string{
		"activation-instructions:",
		"  - STEP 1: Read - carefully",
		"commands:",
		"  - help: Show help",
		`  - "yolo" - Toggle yolo mode`,
		"  - exit",
		"  - name: multi",
		"    description: spans lines",
		"dependencies:",
		"  tasks:",
		"    - create-doc - not a command",
	}, "\n")
	want := strings.Join([]string{
		"activation-instructions:",
		"  - STEP 1: Read - carefully",
		"commands:",
		"  - help",
		`  - "yolo"`,
		"  - exit",
		"  - name: multi",
		"    description: spans lines",
		"dependencies:",
		"  tasks:",
		"    - create-doc - not a command",
	}, "\n")
	got := StripCommandDescriptions(block)
	if got != want {
		t.Fatalf("unexpected result:\n%s", got)
	}
	if again := StripCommandDescriptions(got); again != got {
		t.Fatalf("stripping must be idempotent:\n%s", again)
	}
}

func TestParseTeam(t *testing.T) {
	doc := "bundle:\n  name: Team Fullstack\n  icon: 🚀\n  description: Full stack team\nagents:\n  - analyst\n  - \"*\"\nworkflows:\n  - greenfield.yaml\n"
	team, err := ParseTeam("team-fullstack", doc)
	if err != nil {
		t.Fatalf("parse team: %v", err)
	}
	if team.ID != "team-fullstack" || team.Name != "Team Fullstack" {
		t.Fatalf("unexpected identity %+v", team)
	}
	if !reflect.DeepEqual(team.Members, []string{"analyst", "*"}) {
		t.Fatalf("members = %v", team.Members)
	}
	if !reflect.DeepEqual(team.Workflows, []string{"greenfield.yaml"}) {
		t.Fatalf("workflows = %v", team.Workflows)
	}
	if _, err := ParseTeam("t", "agents:\n  - pm\n"); !apperrors.Is(err, apperrors.ErrMalformedDefinition) {
		t.Fatalf("expected missing name to be malformed, got %v", err)
	}
}

func TestParseDispatch(t *testing.T) {
	def, err := Parse("core/agents/pm.md", pmDocument)
	if err != nil {
		t.Fatalf("parse agent: %v", err)
	}
	if def.Kind() != resource.KindAgent || def.DefinitionID() != "pm" {
		t.Fatalf("unexpected definition %v %v", def.Kind(), def.DefinitionID())
	}
	def, err = Parse("core/agent-teams/team-min.yaml", "bundle:\n  name: Minimal\n")
	if err != nil {
		t.Fatalf("parse team: %v", err)
	}
	if def.Kind() != resource.KindTeam || def.DefinitionID() != "team-min" {
		t.Fatalf("unexpected definition %v %v", def.Kind(), def.DefinitionID())
	}
	_, err = Parse("core/agents/broken.md", "no block")
	var malformed *apperrors.MalformedDefinitionError
	if !apperrors.As(err, &malformed) || malformed.Source != "core/agents/broken.md" {
		t.Fatalf("expected source on malformed error, got %v", err)
	}
}

const teamScript = `package main

func TeamDefinitions() ([]map[string]any, error) {
	return []map[string]any{
		{
			"bundle": map[string]any{"id": "team-scripted", "name": "Scripted"},
			"agents": []string{"pm", "*"},
		},
	}, nil
}`

func TestLoadTeamScript(t *testing.T) {
	teams, err := LoadTeamScript("teams", []byte(teamScript))
	if err != nil {
		t.Fatalf("load script: %v", err)
	}
	if len(teams) != 1 || teams[0].ID != "team-scripted" {
		t.Fatalf("unexpected teams %+v", teams)
	}
	if !reflect.DeepEqual(teams[0].Members, []string{"pm", "*"}) {
		t.Fatalf("members = %v", teams[0].Members)
	}
}

func TestLoadTeamScriptFallbackIDs(t *testing.T) {
	single := `package main

func TeamDefinitions() ([]map[string]any, error) {
	return []map[string]any{{"bundle": map[string]any{"name": "Solo"}, "agents": []string{"pm"}}}, nil
}`
	several := `package main

func TeamDefinitions() ([]map[string]any, error) {
	return []map[string]any{
		{"bundle": map[string]any{"name": "One"}, "agents": []string{"pm"}},
		{"bundle": map[string]any{"id": "team-named", "name": "Two"}, "agents": []string{"dev"}},
		{"bundle": map[string]any{"name": "Three"}, "agents": []string{"qa"}},
	}, nil
}`
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"lone team takes the stem", single, []string{"team-solo"}},
		{"several teams are numbered", several, []string{"team-solo-1", "team-named", "team-solo-3"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			teams, err := LoadTeamScript("team-solo", []byte(tc.src))
			if err != nil {
				t.Fatalf("load script: %v", err)
			}
			var ids []string
			for _, team := range teams {
				ids = append(ids, team.ID)
			}
			if !reflect.DeepEqual(ids, tc.want) {
				t.Fatalf("ids = %v, want %v", ids, tc.want)
			}
		})
	}
}

func TestLoadTeamScriptMissingFunc(t *testing.T) {
	if _, err := LoadTeamScript("broken", []byte("package main\n")); err == nil {
		t.Fatalf("expected error for missing TeamDefinitions")
	}
}
