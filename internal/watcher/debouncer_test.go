package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tije-csv/RAG-2.2/internal/logging"
)

func receive(t *testing.T, d *Debouncer, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(timeout):
		t.Fatal("timeout waiting for debounced events")
		return nil
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(30*time.Millisecond, logging.Nop())
	defer d.Stop()

	// When: one event is added
	d.Add(FileEvent{Path: "/docs/a.txt", Operation: OpCreate})

	// Then: it comes out after the window
	events := receive(t, d, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, "/docs/a.txt", events[0].Path)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want *Operation
	}{
		{"modify burst", []Operation{OpModify, OpModify, OpModify}, opPtr(OpModify)},
		{"create then modify", []Operation{OpCreate, OpModify}, opPtr(OpCreate)},
		{"modify then delete", []Operation{OpModify, OpDelete}, opPtr(OpDelete)},
		{"delete then create", []Operation{OpDelete, OpCreate}, opPtr(OpModify)},
		{"create then delete", []Operation{OpCreate, OpDelete}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(30*time.Millisecond, logging.Nop())
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "/docs/a.txt", Operation: op})
			}

			if tt.want == nil {
				select {
				case events := <-d.Output():
					t.Fatalf("expected no events, got %v", events)
				case <-time.After(150 * time.Millisecond):
				}
				return
			}
			events := receive(t, d, time.Second)
			require.Len(t, events, 1)
			assert.Equal(t, *tt.want, events[0].Operation)
		})
	}
}

func TestDebouncer_BatchIsSortedByPath(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, logging.Nop())
	defer d.Stop()

	for _, p := range []string{"/c.txt", "/a.txt", "/b.txt"} {
		d.Add(FileEvent{Path: p, Operation: OpCreate})
	}

	events := receive(t, d, time.Second)
	require.Len(t, events, 3)
	assert.Equal(t, "/a.txt", events[0].Path)
	assert.Equal(t, "/b.txt", events[1].Path)
	assert.Equal(t, "/c.txt", events[2].Path)
}

func TestDebouncer_StopIsIdempotentAndDropsLateEvents(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, logging.Nop())

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "/a.txt", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(42).String())
}

func opPtr(op Operation) *Operation { return &op }
