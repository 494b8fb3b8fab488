package models

import (
	"testing"
)

func TestCloneIsDeep(t *testing.T) {
	avg := 4.0
	r := &Room{
		Code: "ABC123",
		Participants: map[string]*Participant{
			"c1": {Name: "alice", IsHost: true, Role: RoleVoter},
		},
		Votes:       map[string]Vote{"c1": {Value: "5"}},
		TicketQueue: []string{"PROJ-1"},
		RoundHistory: []RoundRecord{
			{Ticket: "PROJ-0", Votes: map[string]Vote{"c1": {Value: "3"}}, Average: &avg},
		},
		Timer: &Timer{Duration: 60, IsRunning: true},
	}

	c := r.Clone()
	c.Participants["c1"].Name = "mallory"
	c.Participants["c2"] = &Participant{Name: "bob"}
	c.Votes["c1"] = Vote{Value: "13"}
	c.TicketQueue[0] = "EVIL-1"
	c.RoundHistory[0].Votes["c1"] = Vote{Value: "99"}
	c.Timer.IsRunning = false

	if r.Participants["c1"].Name != "alice" || len(r.Participants) != 1 {
		t.Error("participant mutation leaked into the original")
	}
	if r.Votes["c1"].Value != "5" {
		t.Error("vote mutation leaked into the original")
	}
	if r.TicketQueue[0] != "PROJ-1" {
		t.Error("ticket queue mutation leaked into the original")
	}
	if r.RoundHistory[0].Votes["c1"].Value != "3" {
		t.Error("history mutation leaked into the original")
	}
	if !r.Timer.IsRunning {
		t.Error("timer mutation leaked into the original")
	}
}

func TestValidVote(t *testing.T) {
	tests := []struct {
		scale ScaleType
		value string
		want  bool
	}{
		{ScaleFibonacci, "5", true},
		{ScaleFibonacci, "7", false},
		{ScaleFibonacci, CardQuestion, true},
		{ScaleFibonacci, CardCoffee, true},
		{ScaleModifiedFibonacci, "½", true},
		{ScaleModifiedFibonacci, "21", false},
		{ScaleTShirt, "XL", true},
		{ScaleTShirt, "5", false},
	}

	for _, tt := range tests {
		if got := ValidVote(tt.scale, tt.value); got != tt.want {
			t.Errorf("ValidVote(%s, %q) = %v, want %v", tt.scale, tt.value, got, tt.want)
		}
	}
}

func TestValidScale(t *testing.T) {
	if !ValidScale(ScaleFibonacci) || !ValidScale(ScaleTShirt) || !ValidScale(ScaleModifiedFibonacci) {
		t.Error("known scale rejected")
	}
	if ValidScale("klingon") {
		t.Error("unknown scale accepted")
	}
}

func TestAllVotersVoted(t *testing.T) {
	r := &Room{
		Participants: map[string]*Participant{
			"c1": {Role: RoleVoter},
			"c2": {Role: RoleVoter},
			"c3": {Role: RoleSpectator},
		},
		Votes: map[string]Vote{"c1": {Value: "5"}},
	}

	if r.AllVotersVoted() {
		t.Error("reported all voted with one vote missing")
	}

	r.Votes["c2"] = Vote{Value: "8"}
	if !r.AllVotersVoted() {
		t.Error("spectator should not block completion")
	}

	empty := &Room{Participants: map[string]*Participant{}, Votes: map[string]Vote{}}
	if empty.AllVotersVoted() {
		t.Error("empty room reported as all voted")
	}
}
