package embedding

import "testing"

func TestNewGenAIEngineRequiresKey(t *testing.T) {
	if _, err := NewGenAIEngine("", "gemini-embedding-001"); err == nil {
		t.Fatal("engine created without an API key")
	}
}

func TestGenAIEngineName(t *testing.T) {
	e := &GenAIEngine{model: "gemini-embedding-001"}
	if got := e.Name(); got != "genai:gemini-embedding-001" {
		t.Fatalf("Name() = %q", got)
	}
}
