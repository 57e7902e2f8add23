package domain

import "testing"

func TestEncodeMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		want     string
	}{
		{"nil", nil, ""},
		{"empty", map[string]any{}, ""},
		{"path kept literal", map[string]any{"path": "Income > Sales & Services"}, `{"path":"Income > Sales & Services"}`},
		{"keys sorted", map[string]any{"rowType": "Data", "depth": 2}, `{"depth":2,"rowType":"Data"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeMetadata(tt.metadata)
			if err != nil {
				t.Fatalf("EncodeMetadata failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeMetadata() = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := EncodeMetadata(map[string]any{"bad": make(chan int)}); err == nil {
		t.Error("Expected error for a value JSON cannot encode")
	}
}
