package catalog

import (
	"reflect"
	"testing"

	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/testutil"
	"github.com/kingrea/agentpack/internal/tier"
)

const scriptedTeams = `package main

func TeamDefinitions() ([]map[string]any, error) {
	return []map[string]any{
		{
			"bundle": map[string]any{"id": "team-scripted", "name": "Scripted"},
			"agents": []any{"writer"},
		},
		{
			"bundle": map[string]any{"id": "team-docs", "name": "Shadowed"},
			"agents": []any{"writer"},
		},
	}, nil
}
`

func catalogFor(t *testing.T, pack string) *Catalog {
	t.Helper()
	tree, _ := testutil.MemTree(t, map[string]string{
		"core/agents/writer.md":           testutil.AgentDoc("writer", map[string][]string{"tasks": {"draft"}}),
		"core/agents/renamed.md":          testutil.AgentDoc("someone-else", nil),
		"packs/X/agents/writer.md":        testutil.AgentDoc("writer", map[string][]string{"tasks": {"pack-draft"}}),
		"packs/X/agents/critic.md":        testutil.AgentDoc("critic", nil),
		"core/agent-teams/team-docs.yaml": testutil.TeamDoc("Docs", []string{"writer"}),
		"core/agent-teams/team-bad.yaml":  "bundle: [unterminated",
		"core/agent-teams/extra.go":       scriptedTeams,
		"packs/X/agent-teams/team-x.yaml": testutil.TeamDoc("X Team", []string{"critic"}),
	})
	return New(tier.New(tree, tier.DefaultLayout(), pack))
}

func TestAgentFollowsTierPrecedence(t *testing.T) {
	core := catalogFor(t, "")
	agent, err := core.Agent("writer")
	if err != nil {
		t.Fatalf("core writer: %v", err)
	}
	if got := agent.Dependencies["task"]; !reflect.DeepEqual(got, []string{"draft"}) {
		t.Fatalf("core writer deps = %v", got)
	}

	pack := catalogFor(t, "X")
	agent, err = pack.Agent("writer")
	if err != nil {
		t.Fatalf("pack writer: %v", err)
	}
	if got := agent.Dependencies["task"]; !reflect.DeepEqual(got, []string{"pack-draft"}) {
		t.Fatalf("pack writer deps = %v", got)
	}
	again, _ := pack.Agent("writer")
	if again != agent {
		t.Fatalf("agents should be parsed once per catalog")
	}
}

func TestAgentIDMustMatchFileName(t *testing.T) {
	_, err := catalogFor(t, "").Agent("renamed")
	if !apperrors.Is(err, apperrors.ErrMalformedDefinition) {
		t.Fatalf("expected malformed definition, got %v", err)
	}
}

func TestMissingAgent(t *testing.T) {
	_, err := catalogFor(t, "").Agent("ghost")
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAgentIDs(t *testing.T) {
	pack := catalogFor(t, "X")
	all, err := pack.AgentIDs()
	if err != nil {
		t.Fatalf("agent ids: %v", err)
	}
	if want := []string{"critic", "renamed", "writer"}; !reflect.DeepEqual(all, want) {
		t.Fatalf("AgentIDs = %v, want %v", all, want)
	}
	own, err := pack.OwnAgentIDs()
	if err != nil {
		t.Fatalf("own agent ids: %v", err)
	}
	if want := []string{"critic", "writer"}; !reflect.DeepEqual(own, want) {
		t.Fatalf("OwnAgentIDs = %v, want %v", own, want)
	}
}

func TestTeams(t *testing.T) {
	core := catalogFor(t, "")
	ids, err := core.TeamIDs()
	if err != nil {
		t.Fatalf("team ids: %v", err)
	}
	if want := []string{"team-bad", "team-docs", "team-scripted"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("TeamIDs = %v, want %v", ids, want)
	}

	docs, err := core.Team("team-docs")
	if err != nil {
		t.Fatalf("team-docs: %v", err)
	}
	if docs.Name != "Docs" {
		t.Fatalf("yaml team should shadow the scripted one, got name %q", docs.Name)
	}
	scripted, err := core.Team("team-scripted")
	if err != nil {
		t.Fatalf("team-scripted: %v", err)
	}
	if !reflect.DeepEqual(scripted.Members, []string{"writer"}) {
		t.Fatalf("scripted members = %v", scripted.Members)
	}
	if _, err := core.Team("team-bad"); !apperrors.Is(err, apperrors.ErrMalformedDefinition) {
		t.Fatalf("expected malformed team, got %v", err)
	}
	if _, err := core.Team("team-none"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	own, err := catalogFor(t, "X").OwnTeamIDs()
	if err != nil {
		t.Fatalf("own team ids: %v", err)
	}
	if !reflect.DeepEqual(own, []string{"team-x"}) {
		t.Fatalf("OwnTeamIDs = %v", own)
	}
}

func TestScriptedTeamsUseFileStem(t *testing.T) {
	tree, _ := testutil.MemTree(t, map[string]string{
		"core/agents/writer.md":           testutil.AgentDoc("writer", nil),
		"core/agent-teams/team-docs.yaml": testutil.TeamDoc("Docs", []string{"writer"}),
		"core/agent-teams/team-docs.go":   "package main\n\nfunc broken( {\n",
		"core/agent-teams/team-anon.go": `package main

func TeamDefinitions() ([]map[string]any, error) {
	return []map[string]any{{"bundle": map[string]any{"name": "Anon"}, "agents": []any{"writer"}}}, nil
}
`,
	})
	cat := New(tier.New(tree, tier.DefaultLayout(), ""))
	ids, err := cat.TeamIDs()
	if err != nil {
		t.Fatalf("team ids: %v", err)
	}
	if want := []string{"team-anon", "team-docs"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("TeamIDs = %v, want %v", ids, want)
	}
	docs, err := cat.Team("team-docs")
	if err != nil {
		t.Fatalf("a failing script must not shadow the yaml team: %v", err)
	}
	if docs.Name != "Docs" {
		t.Fatalf("team-docs name = %q", docs.Name)
	}
	anon, err := cat.Team("team-anon")
	if err != nil {
		t.Fatalf("team-anon: %v", err)
	}
	if anon.Name != "Anon" {
		t.Fatalf("team-anon name = %q", anon.Name)
	}
}
