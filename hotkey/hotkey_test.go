package hotkey

import (
	"slices"
	"testing"
)

func TestParseChord(t *testing.T) {
	tests := []struct {
		chord   string
		want    []string
		wantErr bool
	}{
		{"ctrl+shift+g", []string{"g", "ctrl", "shift"}, false},
		{"Cmd+Z", []string{"z", "cmd"}, false},
		{"option + space", []string{"space", "alt"}, false},
		{"control+ctrl+x", []string{"x", "ctrl"}, false},
		{"f5", []string{"f5"}, false},
		{"ctrl+shift", nil, true},
		{"ctrl+a+b", nil, true},
		{"ctrl++a", nil, true},
		{"", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.chord, func(t *testing.T) {
			got, err := ParseChord(tt.chord)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseChord(%q) error = %v, wantErr %v", tt.chord, err, tt.wantErr)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("ParseChord(%q) = %v, want %v", tt.chord, got, tt.want)
			}
		})
	}
}

func TestStartWithoutBindings(t *testing.T) {
	var m Manager
	if err := m.Start([]Binding{{Name: "toggle"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Nothing registered, so no hook was started.
	m.Stop()
}

func TestStartRejectsBadChord(t *testing.T) {
	var m Manager
	if err := m.Start([]Binding{{Name: "undo", Chord: "ctrl+shift", Action: func() {}}}); err == nil {
		t.Fatal("Start succeeded with an invalid chord")
	}
}
