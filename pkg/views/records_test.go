package views

import (
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"harbor/pkg/models"
)

func recordEvent(id string, kind int, pubkey string, ts int64, content string, tags nostr.Tags) *nostr.Event {
	return &nostr.Event{
		ID:        id,
		Kind:      kind,
		PubKey:    pubkey,
		CreatedAt: nostr.Timestamp(ts),
		Tags:      tags,
		Content:   content,
		Sig:       strings.Repeat("f", 128),
	}
}

func TestGetProjectsVisibilityAndTombstones(t *testing.T) {
	openTestStore(t)
	user := testPubkey("1")
	stranger := testPubkey("2")

	mine := recordEvent(testID("a1"), models.KindProject, user, 1000, "",
		nostr.Tags{{"d", "mine"}, {"title", "My Project"}})
	shared := recordEvent(testID("a2"), models.KindProject, stranger, 1100, "",
		nostr.Tags{{"d", "shared"}, {"name", "Shared"}, {"p", user}})
	foreign := recordEvent(testID("a3"), models.KindProject, stranger, 1200, "",
		nostr.Tags{{"d", "foreign"}})
	dead := recordEvent(testID("a4"), models.KindProject, user, 1300, "",
		nostr.Tags{{"d", "dead"}, {"deleted"}})
	commit(t, mine, shared, foreign, dead)

	projects, err := GetProjects(readTxn(t), user)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	// Newest first.
	require.Equal(t, "Shared", projects[0].Title)
	require.Equal(t, "My Project", projects[1].Title)
}

func TestGetProjectsReplacement(t *testing.T) {
	openTestStore(t)
	user := testPubkey("1")

	v1 := recordEvent(testID("b1"), models.KindProject, user, 1000, "",
		nostr.Tags{{"d", "proj"}, {"title", "Old Title"}})
	v2 := recordEvent(testID("b2"), models.KindProject, user, 2000, "",
		nostr.Tags{{"d", "proj"}, {"title", "New Title"}})
	commit(t, v1, v2)

	projects, err := GetProjects(readTxn(t), user)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, "New Title", projects[0].Title)
	require.Equal(t, v2.ID, projects[0].EventID)
}

func TestGetProjectsTimestampTieBreaksOnAddress(t *testing.T) {
	openTestStore(t)
	user := testPubkey("1")

	beta := recordEvent(testID("t1"), models.KindProject, user, 5000, "",
		nostr.Tags{{"d", "beta"}, {"title", "Beta"}})
	alpha := recordEvent(testID("t2"), models.KindProject, user, 5000, "",
		nostr.Tags{{"d", "alpha"}, {"title", "Alpha"}})
	commit(t, beta, alpha)

	projects, err := GetProjects(readTxn(t), user)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	require.Equal(t, "Alpha", projects[0].Title)
	require.Equal(t, "Beta", projects[1].Title)
}

func TestGetProjectStatusLatestWins(t *testing.T) {
	openTestStore(t)
	backend := testPubkey("9")

	older := recordEvent(testID("c1"), models.KindStatus, backend, 1000, "",
		nostr.Tags{{"a", projectAddr}, {"agent", testPubkey("2"), "planner"}})
	newer := recordEvent(testID("c2"), models.KindStatus, backend, 2000, "",
		nostr.Tags{
			{"a", projectAddr},
			{"agent", testPubkey("2"), "planner"},
			{"agent", testPubkey("3"), "coder"},
			{"model", "sonnet", "coder"},
			{"tool", "shell", "coder"},
			{"branch", "main"},
		})
	commit(t, older, newer)

	st, err := GetProjectStatus(readTxn(t), projectAddr)
	require.NoError(t, err)
	require.NotNil(t, st)
	require.Equal(t, nostr.Timestamp(2000), st.CreatedAt)
	require.Len(t, st.Agents, 2)
	require.True(t, st.Agents[0].IsPM)
	require.Equal(t, "planner", st.Agents[0].Name)
	require.Equal(t, "sonnet", st.Agents[1].Model)
	require.Equal(t, []string{"shell"}, st.Agents[1].Tools)
	require.Equal(t, []string{"main"}, st.Branches)
}

func TestGetOnlineAgentsStaleness(t *testing.T) {
	openTestStore(t)
	backend := testPubkey("9")

	status := recordEvent(testID("c1"), models.KindStatus, backend, 10000, "",
		nostr.Tags{{"a", projectAddr}, {"agent", testPubkey("2"), "planner"}})
	commit(t, status)

	fresh := time.Unix(10000, 0).Add(time.Minute)
	agents, err := GetOnlineAgents(readTxn(t), projectAddr, fresh)
	require.NoError(t, err)
	require.Len(t, agents, 1)

	stale := time.Unix(10000, 0).Add(10 * time.Minute)
	agents, err = GetOnlineAgents(readTxn(t), projectAddr, stale)
	require.NoError(t, err)
	require.Empty(t, agents)
}

func TestGetNudgesSupersedes(t *testing.T) {
	openTestStore(t)
	user := testPubkey("1")
	agentAddr := "4199:" + testPubkey("5") + ":helper"

	first := recordEvent(testID("d1"), models.KindNudge, user, 1000, "",
		nostr.Tags{{"d", "n1"}, {"a", agentAddr}, {"title", "Allow shell"}, {"allow-tool", "shell"}})
	second := recordEvent(testID("d2"), models.KindNudge, user, 2000, "",
		nostr.Tags{{"d", "n2"}, {"a", agentAddr}, {"title", "Lockdown"}, {"only-tool", "read"}, {"supersedes", first.ID}})
	commit(t, first, second)

	nudges, err := GetNudgesForAgent(readTxn(t), agentAddr)
	require.NoError(t, err)
	require.Len(t, nudges, 1)
	require.Equal(t, second.ID, nudges[0].ID)
	require.Equal(t, []string{"read"}, nudges[0].OnlyTools)
}

func TestEffectiveTools(t *testing.T) {
	base := []string{"read", "write"}

	allow := models.Nudge{AllowedTools: []string{"shell"}}
	deny := models.Nudge{DeniedTools: []string{"write"}}
	only := models.Nudge{OnlyTools: []string{"read"}}

	require.Equal(t, []string{"read", "shell"}, EffectiveTools(base, []models.Nudge{deny, allow}))
	require.Equal(t, []string{"read"}, EffectiveTools(base, []models.Nudge{only, allow}))
	require.Equal(t, base, EffectiveTools(base, nil))
}

func TestGetAgentDefinitions(t *testing.T) {
	openTestStore(t)
	author := testPubkey("5")

	coder := recordEvent(testID("e1"), models.KindAgentDefinition, author, 1000, "You write code.",
		nostr.Tags{{"d", "coder"}, {"title", "Coder"}, {"model", "sonnet"}, {"tool", "shell"}, {"tool", "edit"}})
	planner := recordEvent(testID("e2"), models.KindAgentDefinition, author, 1100, "You plan.",
		nostr.Tags{{"d", "planner"}, {"title", "Planner"}})
	commit(t, coder, planner)

	agents, err := GetAgentDefinitions(readTxn(t))
	require.NoError(t, err)
	require.Len(t, agents, 2)
	// Alphabetical by name.
	require.Equal(t, "Coder", agents[0].Name)
	require.Equal(t, []string{"shell", "edit"}, agents[0].Tools)
	require.Equal(t, "You write code.", agents[0].Instructions)
	require.Equal(t, "Planner", agents[1].Name)
}

func TestGetLessonsByCategory(t *testing.T) {
	openTestStore(t)
	agent := testPubkey("5")

	l1 := recordEvent(testID("f1"), models.KindLesson, agent, 1000, "lesson one",
		nostr.Tags{{"title", "Testing"}, {"category", "quality"}})
	l2 := recordEvent(testID("f2"), models.KindLesson, agent, 2000, "lesson two",
		nostr.Tags{{"title", "Deploys"}, {"category", "ops"}})
	commit(t, l1, l2)

	lessons, err := GetLessons(readTxn(t), []string{agent}, "")
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	require.Equal(t, "Deploys", lessons[0].Title)

	opsOnly, err := GetLessons(readTxn(t), nil, "ops")
	require.NoError(t, err)
	require.Len(t, opsOnly, 1)
	require.Equal(t, "Deploys", opsOnly[0].Title)

	require.Equal(t, []string{"ops", "quality"}, LessonCategories(lessons))
}

func TestGetProfileFallsBackToPubkey(t *testing.T) {
	openTestStore(t)
	known := testPubkey("5")
	unknown := testPubkey("6")

	profile := recordEvent(testID("g1"), models.KindProfile, known, 1000,
		`{"name":"nav","display_name":"Navigator","picture":"https://x/y.png"}`, nostr.Tags{})
	commit(t, profile)

	txn := readTxn(t)
	require.Equal(t, "Navigator", GetProfileName(txn, known))
	require.Equal(t, "https://x/y.png", GetProfilePicture(txn, known))

	name := GetProfileName(txn, unknown)
	require.Contains(t, name, unknown[:8])
	require.Empty(t, GetProfilePicture(txn, unknown))
}
