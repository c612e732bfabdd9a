package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/glance/annotate"
)

func TestStoreNotifiesInOrder(t *testing.T) {
	s := NewStore()
	var seen []uint64
	cancel := s.Subscribe(func(st State) { seen = append(seen, st.Version) })

	s.Update(func(st *State) { st.Status = StatusConnecting })
	s.Update(func(st *State) { st.Status = StatusActive })
	cancel()
	s.Update(func(st *State) { st.Status = StatusClosed })

	assert.Equal(t, []uint64{1, 2}, seen)
	assert.Equal(t, StatusClosed, s.Get().Status)
}

func TestStoreSnapshotsAreIsolated(t *testing.T) {
	s := NewStore()
	s.Update(func(st *State) {
		st.Drawings = []annotate.Drawing{{ID: "a"}}
		st.Preview = &annotate.Drawing{ID: "preview"}
	})

	got := s.Get()
	got.Drawings[0].ID = "mutated"
	got.Preview.ID = "mutated"

	again := s.Get()
	require.Len(t, again.Drawings, 1)
	assert.Equal(t, "a", again.Drawings[0].ID)
	assert.Equal(t, "preview", again.Preview.ID)
}

func TestStoreStartsIdle(t *testing.T) {
	st := NewStore().Get()
	assert.Equal(t, StatusIdle, st.Status)
	assert.NotNil(t, st.Drawings)
}
