package cli

import (
	"strings"
	"testing"
)

func TestReadDoubts_lines(t *testing.T) {
	in := "How does DP recurrence work?\n\n  Why do we use min() here?  \nHow to choose base cases?\n"
	req, err := ReadDoubts(strings.NewReader(in), "CS1010")
	if err != nil {
		t.Fatal(err)
	}
	if req.CourseCode != "CS1010" || req.Source != "cli" {
		t.Errorf("req = %+v", req)
	}
	if len(req.Messages) != 3 || req.Messages[1].Text != "Why do we use min() here?" {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestReadDoubts_JSON(t *testing.T) {
	in := `{"course_code":"CS2040","source":"forum","messages":["AVL rotations?",{"author_role":"ta","text":"see notes"}]}`
	req, err := ReadDoubts(strings.NewReader(in), "")
	if err != nil {
		t.Fatal(err)
	}
	if req.CourseCode != "CS2040" || req.Source != "forum" || len(req.Messages) != 2 {
		t.Fatalf("req = %+v", req)
	}
	if req.Messages[1].AuthorRole != "ta" {
		t.Errorf("second message = %+v", req.Messages[1])
	}

	req, err = ReadDoubts(strings.NewReader(in), "CS9999")
	if err != nil || req.CourseCode != "CS9999" {
		t.Errorf("course override: %+v, %v", req, err)
	}
}

func TestReadDoubts_badJSON(t *testing.T) {
	if _, err := ReadDoubts(strings.NewReader(`{"messages": [1]}`), "CS1010"); err == nil {
		t.Error("expected error for a numeric message")
	}
}
