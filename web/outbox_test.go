package web

import (
	"testing"

	"github.com/constellate/constellate/domain"
)

func TestRenderOutboxCollection(t *testing.T) {
	conf := webTestConf()
	events := []domain.Event{
		testEvent("Garden party", "alice"),
		testEvent("Book club", "alice"),
	}

	err, doc := RenderOutbox("alice", 0, &events, conf)
	if err != nil {
		t.Fatalf("RenderOutbox failed: %v", err)
	}

	parsed := parseJSONDoc(t, doc)
	if parsed["type"] != "OrderedCollection" {
		t.Errorf("Expected OrderedCollection, got %v", parsed["type"])
	}
	if parsed["totalItems"] != float64(2) {
		t.Errorf("Expected totalItems 2, got %v", parsed["totalItems"])
	}
	if parsed["first"] != "https://constellate.example/users/alice/outbox?page=1" {
		t.Errorf("Unexpected first page link: %v", parsed["first"])
	}
}

func TestRenderOutboxPage(t *testing.T) {
	conf := webTestConf()
	events := []domain.Event{testEvent("Garden party", "alice")}

	err, doc := RenderOutbox("alice", 1, &events, conf)
	if err != nil {
		t.Fatalf("RenderOutbox failed: %v", err)
	}

	parsed := parseJSONDoc(t, doc)
	if parsed["type"] != "OrderedCollectionPage" {
		t.Errorf("Expected OrderedCollectionPage, got %v", parsed["type"])
	}

	items, ok := parsed["orderedItems"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("Expected one item, got %v", parsed["orderedItems"])
	}

	activity := items[0].(map[string]any)
	if activity["type"] != "Create" {
		t.Errorf("Expected Create activity, got %v", activity["type"])
	}
	if activity["actor"] != "https://constellate.example/users/alice" {
		t.Errorf("Unexpected actor: %v", activity["actor"])
	}

	object := activity["object"].(map[string]any)
	if object["type"] != "Event" {
		t.Errorf("Expected embedded Event object, got %v", object["type"])
	}
	if object["name"] != "Garden party" {
		t.Errorf("Unexpected event name: %v", object["name"])
	}
	if _, present := object["@context"]; present {
		t.Error("Embedded object should not carry its own @context")
	}

	if _, present := parsed["next"]; present {
		t.Error("Single page should not have a next link")
	}
	if _, present := parsed["prev"]; present {
		t.Error("First page should not have a prev link")
	}
}

func TestRenderOutboxPagination(t *testing.T) {
	conf := webTestConf()

	events := make([]domain.Event, 0, outboxItemsPerPage+5)
	for i := 0; i < outboxItemsPerPage+5; i++ {
		events = append(events, testEvent("Event", "alice"))
	}

	err, doc := RenderOutbox("alice", 1, &events, conf)
	if err != nil {
		t.Fatalf("RenderOutbox failed: %v", err)
	}

	parsed := parseJSONDoc(t, doc)
	items := parsed["orderedItems"].([]any)
	if len(items) != outboxItemsPerPage {
		t.Errorf("Expected %d items on first page, got %d", outboxItemsPerPage, len(items))
	}
	if parsed["next"] != "https://constellate.example/users/alice/outbox?page=2" {
		t.Errorf("Expected next link, got %v", parsed["next"])
	}

	err, doc = RenderOutbox("alice", 2, &events, conf)
	if err != nil {
		t.Fatalf("RenderOutbox page 2 failed: %v", err)
	}

	parsed = parseJSONDoc(t, doc)
	items = parsed["orderedItems"].([]any)
	if len(items) != 5 {
		t.Errorf("Expected 5 items on second page, got %d", len(items))
	}
	if _, present := parsed["next"]; present {
		t.Error("Last page should not have a next link")
	}
	if parsed["prev"] != "https://constellate.example/users/alice/outbox?page=1" {
		t.Errorf("Expected prev link, got %v", parsed["prev"])
	}
}

func TestRenderOutboxEmptyPage(t *testing.T) {
	conf := webTestConf()

	err, doc := RenderOutbox("alice", 3, nil, conf)
	if err != nil {
		t.Fatalf("RenderOutbox failed: %v", err)
	}

	parsed := parseJSONDoc(t, doc)
	items, ok := parsed["orderedItems"].([]any)
	if !ok || len(items) != 0 {
		t.Errorf("Expected empty page, got %v", parsed["orderedItems"])
	}
}

func TestParsePageParam(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"", 0},
		{"1", 1},
		{"42", 42},
		{"0", 0},
		{"-3", 0},
		{"abc", 0},
	}

	for _, tt := range tests {
		if got := ParsePageParam(tt.input); got != tt.expected {
			t.Errorf("ParsePageParam(%q) = %d, expected %d", tt.input, got, tt.expected)
		}
	}
}
