package activity

import (
	"fmt"
	"testing"
)

func TestFeed_RecordAndRecent(t *testing.T) {
	f, err := NewFeed(Config{})
	if err != nil {
		t.Fatalf("NewFeed error: %v", err)
	}
	defer f.Close()

	for i := 1; i <= 3; i++ {
		_, err := f.Record(Entry{
			Topic:   "task.submitted",
			Summary: fmt.Sprintf("task %d submitted", i),
			TaskID:  fmt.Sprintf("t%d", i),
		})
		if err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}

	recent := f.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) = %d entries", len(recent))
	}
	// Newest first.
	if recent[0].TaskID != "t3" || recent[1].TaskID != "t2" {
		t.Errorf("order = [%s %s], want newest first", recent[0].TaskID, recent[1].TaskID)
	}

	if got := f.Recent(0); len(got) != 3 {
		t.Errorf("Recent(0) = %d entries, want all", len(got))
	}

	entry := recent[0]
	if entry.ID == "" || entry.Timestamp.IsZero() {
		t.Error("Record should fill in id and timestamp")
	}
}

func TestFeed_RingBounded(t *testing.T) {
	f, err := NewFeed(Config{MaxEntries: 2})
	if err != nil {
		t.Fatalf("NewFeed error: %v", err)
	}
	defer f.Close()

	for i := 1; i <= 4; i++ {
		f.Record(Entry{Topic: "t", Summary: fmt.Sprintf("event %d", i), TaskID: fmt.Sprintf("t%d", i)})
	}

	if f.Len() != 2 {
		t.Errorf("Len = %d, want 2", f.Len())
	}
	recent := f.Recent(0)
	if recent[0].TaskID != "t4" || recent[1].TaskID != "t3" {
		t.Errorf("oldest entries should be evicted, got [%s %s]", recent[0].TaskID, recent[1].TaskID)
	}
}

func TestFeed_Search(t *testing.T) {
	f, err := NewFeed(Config{})
	if err != nil {
		t.Fatalf("NewFeed error: %v", err)
	}
	defer f.Close()

	f.Record(Entry{Topic: "task.failed", Summary: "task t1 failed: model timeout", TaskID: "t1", AgentID: "agent-1"})
	f.Record(Entry{Topic: "task.completed", Summary: "task t2 completed by agent-2", TaskID: "t2", AgentID: "agent-2"})
	f.Record(Entry{Topic: "agent.failed", Summary: "agent agent-1 failed, 2 tasks requeued", AgentID: "agent-1"})

	hits, err := f.Search("timeout", "", 10)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) != 1 || hits[0].TaskID != "t1" {
		t.Fatalf("Search(timeout) = %d hits", len(hits))
	}
	if hits[0].Topic != "task.failed" || hits[0].AgentID != "agent-1" {
		t.Errorf("hit fields not restored: %+v", hits[0])
	}
}

func TestFeed_SearchTopicFilter(t *testing.T) {
	f, err := NewFeed(Config{})
	if err != nil {
		t.Fatalf("NewFeed error: %v", err)
	}
	defer f.Close()

	f.Record(Entry{Topic: "task.failed", Summary: "task t1 failed"})
	f.Record(Entry{Topic: "task.completed", Summary: "task t2 failed retry succeeded"})

	hits, err := f.Search("failed", "task.failed", 10)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) != 1 || hits[0].Topic != "task.failed" {
		t.Errorf("topic filter wrong: %d hits", len(hits))
	}
}

func TestFeed_Closed(t *testing.T) {
	f, err := NewFeed(Config{})
	if err != nil {
		t.Fatalf("NewFeed error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	if _, err := f.Record(Entry{Summary: "late"}); err == nil {
		t.Error("Record after Close should fail")
	}
	if _, err := f.Search("late", "", 5); err == nil {
		t.Error("Search after Close should fail")
	}
}
