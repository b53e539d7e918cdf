package app

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"supernova/api/internal/diary"
	"supernova/api/internal/governance"
	"supernova/api/internal/pages"
	"supernova/api/internal/session"
	"supernova/api/internal/social"
	"supernova/api/internal/videochat"
)

// Navigation maps sidebar labels to page slugs. Feed has no compiled page
// and is served from the pages directory.
var Navigation = map[string]string{
	"Agents":          "agents",
	"Diary":           "diary",
	"Feed":            "feed",
	"Messages":        "messages",
	"Profile":         "profile",
	"Resonance Music": "resonance_music",
	"Video Chat":      "video_chat",
	"Voting":          "voting",
}

const signalingPath = "/ws/video"

func (s *Service) registerPages(registry *pages.Registry) {
	registry.Register(pages.Page{Slug: "profile", Render: s.renderProfile})
	registry.Register(pages.Page{Slug: "messages", Render: renderMessages})
	registry.Register(pages.Page{Slug: "video_chat", Render: s.renderVideoChat})
	registry.Register(pages.Page{Slug: "voting", Render: renderVoting})
	registry.Register(pages.Page{Slug: "agents", Main: renderAgents})
	registry.Register(pages.Page{Slug: "resonance_music", Render: renderResonanceMusic})
	registry.Register(pages.Page{Slug: "diary", Render: s.renderDiary})
}

// guardInto runs a guarded dispatch and decodes the result into target.
func guardInto(frame *pages.Frame, name string, payload map[string]any, target any) bool {
	result, ok := frame.Guard(name, payload)
	if !ok {
		return false
	}
	raw, err := json.Marshal(result)
	if err == nil {
		err = json.Unmarshal(raw, target)
	}
	if err != nil {
		frame.Canvas.Error("%s returned an unexpected result: %v", name, err)
		return false
	}
	return true
}

func (s *Service) renderProfile(frame *pages.Frame) error {
	username := strings.TrimSpace(frame.Params.Get("username"))
	if username == "" {
		username = frame.Session.EnsureActiveUser()
	}
	if username == session.GuestUser {
		frame.Canvas.Info("You are browsing as a guest. Sign in to see your profile.")
		return nil
	}
	if !frame.RequireDispatcher() {
		return nil
	}

	var profile social.Profile
	if !guardInto(frame, "get_user", map[string]any{"username": username}, &profile) {
		return nil
	}
	frame.Session.Set(session.KeyProfileData, profile)
	frame.Canvas.Markdown("## %s", profile.Username)
	if profile.Bio != "" {
		frame.Canvas.Markdown("%s", profile.Bio)
	}

	var followers struct {
		Followers []string `json:"followers"`
	}
	if guardInto(frame, "get_followers", map[string]any{"username": username}, &followers) {
		frame.Session.Set(session.KeyProfileFollowers, followers.Followers)
		frame.Canvas.Metric("Followers", len(followers.Followers))
	}
	var following struct {
		Following []string `json:"following"`
	}
	if guardInto(frame, "get_following", map[string]any{"username": username}, &following) {
		frame.Session.Set(session.KeyProfileFollowing, following.Following)
		frame.Canvas.Metric("Following", len(following.Following))
	}
	return nil
}

func renderMessages(frame *pages.Frame) error {
	conversations := frame.Session.Conversations()
	if len(conversations) == 0 {
		frame.Canvas.Info("No conversations yet.")
		return nil
	}
	peers := make([]string, 0, len(conversations))
	for peer := range conversations {
		peers = append(peers, peer)
	}
	sort.Strings(peers)

	var b strings.Builder
	for _, peer := range peers {
		fmt.Fprintf(&b, "* **%s**: %s\n", peer, conversations[peer].Preview)
	}
	frame.Canvas.Markdown("%s", b.String())

	if peer := frame.Params.Get("with"); peer != "" {
		if conversation, ok := conversations[peer]; ok {
			frame.Canvas.Data("messages", conversation.Messages)
		}
	}
	return nil
}

// renderVideoChat shows the call roster. A stopped relay raises the fatal
// overlay and disables joining.
func (s *Service) renderVideoChat(frame *pages.Frame) error {
	if s.hub == nil || !s.hub.Running() {
		frame.Canvas.Overlay("Video chat unavailable", "The signaling relay is not running. Joining is disabled.")
		frame.Canvas.Data("call", map[string]any{"join_disabled": true, "endpoint": signalingPath})
		return nil
	}
	frame.Canvas.Data("call", map[string]any{"join_disabled": false, "endpoint": signalingPath})
	frame.Canvas.Metric("Connected peers", s.hub.Count())

	participants := frame.Params["participant"]
	if len(participants) == 0 {
		return nil
	}
	manager := videochat.NewManager(nil, nil)
	streams := manager.StartCall(append([]string{frame.Session.EnsureActiveUser()}, participants...))
	frame.Canvas.Data("streams", streams)
	return nil
}

func renderVoting(frame *pages.Frame) error {
	if !frame.RequireDispatcher() {
		return nil
	}

	var listed struct {
		Proposals []governance.Proposal `json:"proposals"`
	}
	if guardInto(frame, "list_proposals", nil, &listed) {
		frame.Session.Set(session.KeyProposalsCache, listed.Proposals)
		if len(listed.Proposals) == 0 {
			frame.Canvas.Info("No proposals yet.")
		} else {
			var b strings.Builder
			for _, proposal := range listed.Proposals {
				fmt.Fprintf(&b, "* **%s** (%s), voting until %s\n", proposal.Title, proposal.Status, proposal.VotingDeadline)
			}
			frame.Canvas.Markdown("%s", b.String())
		}
	}

	var votes struct {
		Votes []governance.VoteRecord `json:"votes"`
	}
	if guardInto(frame, "load_votes", nil, &votes) {
		frame.Session.Set(session.KeyVotesCache, votes.Votes)
		frame.Canvas.Metric("Vote records", len(votes.Votes))
	}

	if decision, ok := governance.CurrentDecision(frame.Session); ok {
		verdict := "rejected"
		if decision.Approved {
			verdict = "approved"
		}
		frame.Canvas.Info("Proposal %s was %s with score %d.", decision.ProposalID, verdict, decision.Score)
	}
	frame.Canvas.Metric("Runs", len(governance.RunHistory(frame.Session)))
	return nil
}

func renderAgents(frame *pages.Frame) error {
	if !frame.RequireDispatcher() {
		return nil
	}
	var listed struct {
		Agents []string `json:"agents"`
	}
	if !guardInto(frame, "list_agents", nil, &listed) {
		return nil
	}
	frame.Session.Set(session.KeyAgentList, listed.Agents)
	var b strings.Builder
	for _, name := range listed.Agents {
		fmt.Fprintf(&b, "* %s\n", name)
	}
	frame.Canvas.Markdown("%s", b.String())
	return nil
}

func renderResonanceMusic(frame *pages.Frame) error {
	if !frame.RequireDispatcher() {
		return nil
	}
	profile := strings.TrimSpace(frame.Params.Get("profile"))
	if profile == "" {
		profile = frame.Session.EnsureActiveUser()
	}

	if summary, ok := frame.Guard("resonance_summary", map[string]any{"profile": profile}); ok {
		frame.Canvas.Data("resonance", summary)
	}
	var midi struct {
		MIDIBase64 string `json:"midi_base64"`
	}
	if !guardInto(frame, "generate_midi", map[string]any{"profile": profile}, &midi) {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(midi.MIDIBase64)
	if err != nil {
		return fmt.Errorf("decode midi: %w", err)
	}
	frame.Canvas.Metric("MIDI bytes", len(decoded))
	frame.Canvas.Data("midi_base64", midi.MIDIBase64)
	return nil
}

func (s *Service) renderDiary(frame *pages.Frame) error {
	entries, err := diary.Entries(frame.Session)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		frame.Canvas.Info("Your harmony diary is empty.")
	} else {
		frame.Canvas.Markdown("%s", diary.Markdown(entries))
	}

	if s.rfcs == nil {
		frame.Canvas.Warning("%v", missing("RFC directory"))
		return nil
	}
	rfcs, err := s.rfcs.List()
	if err != nil {
		return fmt.Errorf("list rfcs: %w", err)
	}
	if len(rfcs) == 0 {
		return nil
	}
	var b strings.Builder
	for _, entry := range rfcs {
		fmt.Fprintf(&b, "* **%s**: %s\n", entry.ID, entry.Summary)
	}
	frame.Canvas.Markdown("%s", b.String())
	return nil
}
