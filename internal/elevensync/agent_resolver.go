package elevensync

import (
	"context"
	"log"
	"strings"

	"github.com/voicebotai/dashboard/internal/elevenlabs"
)

// AgentMap is the bidirectional identifier/display-name mapping built
// once per sync cycle.
type AgentMap struct {
	names map[string]string // id -> display name
	ids   map[string]string // display name -> id
}

func NewAgentMap() *AgentMap {
	return &AgentMap{
		names: make(map[string]string),
		ids:   make(map[string]string),
	}
}

func (m *AgentMap) Add(agentID, agentName string) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return
	}
	agentName = strings.TrimSpace(agentName)
	if agentName == "" {
		agentName = agentID
	}
	m.names[agentID] = agentName
	m.ids[agentName] = agentID
}

// DisplayName resolves an identifier to its display name, or returns the
// input unchanged so callers never render an empty agent.
func (m *AgentMap) DisplayName(idOrName string) string {
	if m == nil {
		return idOrName
	}
	if name, ok := m.names[strings.TrimSpace(idOrName)]; ok && name != "" {
		return name
	}
	return idOrName
}

// Resolve reports the display name for an identifier when one is known
// and differs from the identifier itself.
func (m *AgentMap) Resolve(agentID string) (string, bool) {
	if m == nil {
		return "", false
	}
	name, ok := m.names[strings.TrimSpace(agentID)]
	if !ok || name == "" || name == strings.TrimSpace(agentID) {
		return "", false
	}
	return name, true
}

func (m *AgentMap) ID(agentName string) (string, bool) {
	if m == nil {
		return "", false
	}
	id, ok := m.ids[strings.TrimSpace(agentName)]
	return id, ok
}

func (m *AgentMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

// AgentResolver builds the AgentMap from the vendor agent list, issuing a
// per-agent detail fetch only when the list entry carries no name.
type AgentResolver struct {
	Client   *elevenlabs.Client
	PageSize int
	MaxPages int
	Logf     func(string, ...any)
}

func NewAgentResolver(client *elevenlabs.Client) *AgentResolver {
	return &AgentResolver{
		Client:   client,
		PageSize: elevenlabs.DefaultPageSize,
		MaxPages: elevenlabs.DefaultMaxPages,
		Logf:     log.Printf,
	}
}

// Resolve fetches all agents and builds the map. A single agent's fetch
// failure degrades that agent to identifier-as-name; it never fails the
// whole resolution. Repeated calls converge to the same map for stable
// remote data.
func (r *AgentResolver) Resolve(ctx context.Context) (*AgentMap, error) {
	agents := NewAgentMap()

	items, err := r.Client.AllAgents(ctx, r.PageSize, r.MaxPages)
	if err != nil {
		if len(items) == 0 {
			return agents, err
		}
		r.logf("agent list fetch stopped early, resolving %d agents: %v", len(items), err)
	}

	for _, item := range items {
		record, err := DecodeRaw(item)
		if err != nil {
			continue
		}
		agentID := firstString(record, agentIDPaths)
		if agentID == "" {
			continue
		}

		agentName := firstString(record, []fieldPath{{"name"}, {"agent_name"}})
		if agentName == "" {
			agentName = r.fetchAgentName(ctx, agentID)
		}
		agents.Add(agentID, agentName)
	}

	return agents, nil
}

// fetchAgentName issues the fallback detail fetch. Any failure falls back
// to the identifier.
func (r *AgentResolver) fetchAgentName(ctx context.Context, agentID string) string {
	detail, err := r.Client.GetAgent(ctx, agentID)
	if err != nil {
		r.logf("agent %s detail fetch failed, using identifier: %v", agentID, err)
		return agentID
	}
	record, err := DecodeRaw(detail)
	if err != nil {
		return agentID
	}
	if name := firstString(record, []fieldPath{{"name"}}); name != "" {
		return name
	}
	return agentID
}

func (r *AgentResolver) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}
