//go:build property
// +build property

package optimistic

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRoundTripLaw verifies that a failed commit restores the exact
// pre-apply state.
// Property: revert(apply(s), s) == s
func TestRoundTripLaw(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("remove then revert restores the list", prop.ForAll(
		func(keys []string, pick int) bool {
			before := uniqueItems(keys)
			if len(before) == 0 {
				return true
			}
			id := before[pick%len(before)].ID
			p := RemoveItem(itemKey, id)
			return reflect.DeepEqual(p.Revert(p.Apply(before), before), before)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 1000),
	))

	properties.Property("update then revert restores the list", prop.ForAll(
		func(keys []string, pick int, name string) bool {
			before := uniqueItems(keys)
			if len(before) == 0 {
				return true
			}
			id := before[pick%len(before)].ID
			p := UpdateItem(itemKey, id, func(it item) item { it.Name = name; return it })
			return reflect.DeepEqual(p.Revert(p.Apply(before), before), before)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 1000),
		gen.AlphaString(),
	))

	properties.Property("failed run leaves state untouched", prop.ForAll(
		func(keys []string, extra string) bool {
			before := uniqueItems(keys)
			state := NewState(before)
			c := New(state)
			p := InsertItem(itemKey, item{ID: "#" + extra}, Front)
			a := p.Action("list", func(context.Context) (Confirm[[]item], error) {
				return nil, errors.New("rejected")
			})
			outcome, _ := c.Run(context.Background(), a)
			return outcome == OutcomeRolledBack && reflect.DeepEqual(state.Get(), before)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.Property("toggle reverts to captured value", prop.ForAll(
		func(initial bool) bool {
			p := Toggle(func(b bool) bool { return b }, func(_ bool, v bool) bool { return v })
			return p.Revert(p.Apply(initial), initial) == initial
		},
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func uniqueItems(keys []string) []item {
	seen := make(map[string]bool)
	out := []item{}
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, item{ID: k, Name: "n-" + k})
	}
	return out
}
