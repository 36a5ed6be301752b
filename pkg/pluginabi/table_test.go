// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pluginabi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/holomush/plughost/pkg/pluginabi"
)

func TestTable_ZeroValueUsable(t *testing.T) {
	var tbl pluginabi.Table[string]

	h := tbl.Insert("a")
	assert.Equal(t, pluginabi.Handle(1), h)

	v, ok := tbl.Lookup(h)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = tbl.Lookup(pluginabi.NullHandle)
	assert.False(t, ok)
}

// TestTable_Properties checks the table against a plain map model:
// handles are unique and never null, removed handles stay dead.
func TestTable_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var tbl pluginabi.Table[int]
		model := map[pluginabi.Handle]int{}
		seen := map[pluginabi.Handle]bool{}
		var issued []pluginabi.Handle

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if len(issued) == 0 || rapid.Bool().Draw(t, "insert") {
				h := tbl.Insert(i)
				if h.IsNull() {
					t.Fatalf("insert returned the null handle")
				}
				if seen[h] {
					t.Fatalf("handle %v issued twice", h)
				}
				seen[h] = true
				model[h] = i
				issued = append(issued, h)
				continue
			}

			h := issued[rapid.IntRange(0, len(issued)-1).Draw(t, "pick")]
			want, live := model[h]
			got, ok := tbl.Remove(h)
			if ok != live {
				t.Fatalf("remove %v: ok=%v, model live=%v", h, ok, live)
			}
			if ok && got != want {
				t.Fatalf("remove %v: got %d want %d", h, got, want)
			}
			delete(model, h)
		}

		if tbl.Len() != len(model) {
			t.Fatalf("len %d, model %d", tbl.Len(), len(model))
		}
	})
}

func TestTable_DrainEmptiesInHandleOrder(t *testing.T) {
	var tbl pluginabi.Table[string]
	a := tbl.Insert("a")
	tbl.Insert("b")
	tbl.Insert("c")
	tbl.Remove(a)

	assert.Equal(t, []string{"b", "c"}, tbl.Drain())
	assert.Zero(t, tbl.Len())
	assert.Empty(t, tbl.Drain())

	assert.Equal(t, pluginabi.Handle(4), tbl.Insert("d"), "handles keep increasing after a drain")
}
