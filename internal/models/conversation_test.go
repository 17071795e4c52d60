package models

import (
	"testing"
	"time"
)

func TestConversation_Clone(t *testing.T) {
	orig := &Conversation{
		ID:   "c1",
		Mode: ModeAcademic,
		Messages: []Message{
			{Role: RoleUser, Content: "hi", Timestamp: time.Now()},
			{Role: RoleAssistant, Content: "hello", Sources: []string{"Intro"}},
		},
	}
	cp := orig.Clone()
	cp.Messages[0].Content = "changed"
	cp.Messages[1].Sources[0] = "changed"
	cp.Messages = append(cp.Messages, Message{Role: RoleUser, Content: "more"})

	if orig.Messages[0].Content != "hi" {
		t.Error("clone shares message content with original")
	}
	if orig.Messages[1].Sources[0] != "Intro" {
		t.Error("clone shares sources slice with original")
	}
	if len(orig.Messages) != 2 {
		t.Errorf("original length changed to %d", len(orig.Messages))
	}
}

func TestConversation_CloneNil(t *testing.T) {
	var c *Conversation
	if c.Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestCloneMessages_nilIsEmpty(t *testing.T) {
	got := CloneMessages(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("CloneMessages(nil) = %#v, want empty non-nil", got)
	}
}
