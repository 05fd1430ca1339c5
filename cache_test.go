package weakcache_test

import (
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/djdv/go-weakcache"
)

type (
	payload struct {
		name string
		pad  [64]byte // Keep clear of the tiny allocator.
	}
	// switchHandle resolves its value only while live is set.
	switchHandle struct {
		value *payload
		live  *bool
	}
)

func (handle switchHandle) Resolve() (*payload, bool) {
	if *handle.live {
		return handle.value, true
	}
	return nil, false
}

func (switchHandle) Watch(func()) bool { return false }

func TestCache(t *testing.T) {
	t.Run("invalid capacity", invalidCapacity)
	t.Run("empty miss", emptyMiss)
	t.Run("basic", basic)
	t.Run("replace", replace)
	t.Run("replace pinned", replacePinned)
	t.Run("dead replacement", deadReplacement)
	t.Run("no value", noValue)
	t.Run("peek", peek)
	t.Run("delete", deleteKey)
	t.Run("clear", clearCache)
	t.Run("scalar", scalarSurvives)
	t.Run("ownership", ownership)
	t.Run("disabled", disabled)
}

func invalidCapacity(t *testing.T) {
	for _, capacity := range []int{-1, weakcache.MaximumCapacity + 1} {
		t.Run(fmt.Sprintf("%d", capacity), func(t *testing.T) {
			t.Parallel()
			cache, err := weakcache.New(weakcache.Config[int, int]{
				Capacity: capacity,
			})
			if cache != nil || !errors.Is(err, weakcache.ErrInvalidCapacity) {
				t.Errorf(
					"New did not return %q when passed an invalid capacity: %d (got: %v)",
					weakcache.ErrInvalidCapacity, capacity, err,
				)
			}
		})
	}
	for _, config := range []weakcache.Config[int, int]{
		{Capacity: -5, Disabled: true},
		{Capacity: weakcache.MaximumCapacity + 1, Policy: weakcache.NewSweep[int, int]()},
	} {
		t.Run(fmt.Sprintf("overridden %d", config.Capacity), func(t *testing.T) {
			t.Parallel()
			if _, err := weakcache.New(config); !errors.Is(err, weakcache.ErrInvalidCapacity) {
				t.Errorf(
					"New did not validate a capacity its policy ignores: %d (got: %v)",
					config.Capacity, err,
				)
			}
		})
	}
	for _, capacity := range []int{-1, 0, weakcache.MaximumCapacity + 1} {
		t.Run(fmt.Sprintf("tiered %d", capacity), func(t *testing.T) {
			t.Parallel()
			policy, err := weakcache.NewTiered[int, int](capacity)
			if policy != nil || !errors.Is(err, weakcache.ErrInvalidCapacity) {
				t.Errorf(
					"NewTiered did not return %q when passed an invalid capacity: %d (got: %v)",
					weakcache.ErrInvalidCapacity, capacity, err,
				)
			}
		})
	}
}

func emptyMiss(t *testing.T) {
	t.Parallel()
	const (
		key     = "whatever"
		whyMiss = "empty cache"
	)
	cache := newCache[string, int](t, weakcache.Config[string, int]{})
	for range 3 {
		mustMiss(t, cache, key, whyMiss)
	}
	if cache.Has(key) || cache.Len() != 0 {
		t.Fatal("repeated misses changed the cache")
	}
	if got := cache.Stats().Misses; got != 3 {
		t.Fatalf("expected 3 misses to be counted, got %d", got)
	}
}

func basic(t *testing.T) {
	const (
		key    = 1
		value  = 1
		errCtx = "after add"
	)
	cache := newCache[int, int](t, weakcache.Config[int, int]{})
	t.Run("add", func(t *testing.T) {
		cache.SetValue(key, value)
	})
	t.Run("get", func(t *testing.T) {
		checkGet(t, cache, key, value, errCtx)
	})
	checkSize(t, cache, 1, errCtx)
	keysMatch(t, cache, []int{key}, errCtx)
}

func replace(t *testing.T) {
	t.Parallel()
	const key = "shared"
	var (
		cache  = newWeakCache(t, weakcache.Config[string, *payload]{})
		first  = &payload{name: "first"}
		second = &payload{name: "second"}
	)
	cache.SetValue(key, first)
	original, _ := cache.Get(key, weakcache.Peek)
	cache.SetValue(key, second)
	checkGet(t, cache, key, second, "after replacing")
	checkSize(t, cache, 1, "after replacing")
	if original.Resident() || original.Pinned() {
		t.Fatal("replaced entry kept its policy placement")
	}
	runtime.KeepAlive(first)
}

func replacePinned(t *testing.T) {
	t.Parallel()
	const key = "pinned"
	cache := newCache[string, int](t, weakcache.Config[string, int]{})
	cache.SetValuePriority(key, 1, weakcache.Pin)
	cache.SetValue(key, 2)
	entry, _ := cache.Get(key, weakcache.Peek)
	if entry.Pinned() {
		t.Fatal("expected a replacement to start unpinned")
	}
	checkGet(t, cache, key, 2, "after replacing a pinned entry")
}

func deadReplacement(t *testing.T) {
	t.Parallel()
	const key = "k"
	var (
		live   = true
		source = newWeakCache(t, weakcache.Config[string, *payload]{
			Capacity: 1,
			Handle:   func(value *payload) weakcache.Handle[*payload] {
				return switchHandle{value: value, live: &live}
			},
		})
		cache = newWeakCache(t, weakcache.Config[string, *payload]{
			Capacity: 1,
		})
		previous = &payload{name: "previous"}
	)
	source.SetValue("dead", &payload{name: "dead"})
	dead, _ := source.Get("dead", weakcache.Peek)
	source.SetValue("pusher", &payload{name: "pusher"}) // Displaces "dead".
	source.Delete("dead")
	live = false
	if dead.Held() {
		t.Fatal("expected the displaced entry to be soft-demoted")
	}
	cache.SetValue(key, previous)
	replaced, _ := cache.Get(key, weakcache.Peek)
	cache.Set(key, dead, weakcache.Inherit)
	mustMiss(t, cache, key, "replaced by an entry without a value")
	checkSize(t, cache, 0, "after an unusable replacement")
	if replaced.Resident() {
		t.Fatal("replaced entry kept its policy placement")
	}
	mustPanicWith(t, weakcache.ErrNotOwned, func() {
		cache.Used(replaced, weakcache.Inherit)
	})
	// The rejected entry stays unowned, so any cache may take it.
	source.Insert(key, dead, weakcache.Inherit)
	if source.Has(key) {
		t.Fatal("inserting an entry without a value added a key")
	}
	runtime.KeepAlive(previous)
}

func noValue(t *testing.T) {
	t.Parallel()
	const key = "nothing"
	pointers := newWeakCache(t, weakcache.Config[string, *payload]{})
	pointers.SetValue(key, nil)
	mustMiss(t, pointers, key, "nil pointer stored")
	interfaces := newCache[string, any](t, weakcache.Config[string, any]{})
	interfaces.SetValue(key, nil)
	mustMiss(t, interfaces, key, "nil interface stored")
	if pointers.Len()+interfaces.Len() != 0 {
		t.Fatal("storing no value added a key")
	}
	pointers.Insert(key, nil, weakcache.Inherit)
	if pointers.Has(key) {
		t.Fatal("inserting a nil entry added a key")
	}
}

func peek(t *testing.T) {
	t.Parallel()
	const (
		capacity = 1
		key      = "peeked"
	)
	cache := newCache[string, int](t, weakcache.Config[string, int]{
		Capacity: capacity,
	})
	cache.SetValue(key, 1)
	entry, ok := cache.Get(key, weakcache.Peek)
	if !ok {
		t.Fatal("expected peek to find the entry")
	}
	// With a single slot per tier, every write starts a new generation,
	// so any use promotes. Peeking must not.
	for range 3 {
		if _, ok := cache.Get(key, weakcache.Peek); !ok {
			t.Fatal("expected peek to find the entry")
		}
	}
	if tier := weakcache.TierOf(entry); tier != 0 {
		t.Fatalf("peek promoted the entry to tier %d", tier)
	}
	mustGet(t, cache, key)
	if tier := weakcache.TierOf(entry); tier != 1 {
		t.Fatalf("use did not promote the entry (tier %d)", tier)
	}
}

func deleteKey(t *testing.T) {
	t.Parallel()
	const key = "deleted"
	cache := newCache[string, int](t, weakcache.Config[string, int]{})
	if cache.Delete(key) {
		t.Fatal("deleting an absent key reported a mapping")
	}
	cache.SetValue(key, 1)
	entry, _ := cache.Get(key, weakcache.Peek)
	if !cache.Delete(key) {
		t.Fatal("deleting a present key reported no mapping")
	}
	mustMiss(t, cache, key, "deleted")
	if entry.Resident() {
		t.Fatal("deleted entry is still resident")
	}
}

func clearCache(t *testing.T) {
	t.Parallel()
	const count = 16
	var (
		policy = newTiered[int, int](t, count)
		cache  = newCache[int, int](t, weakcache.Config[int, int]{
			Policy: policy,
		})
	)
	addIncrementingInts(cache, count)
	entry, _ := cache.Get(1, weakcache.Peek)
	cache.Clear()
	for key := range count {
		mustMiss(t, cache, key+1, "cleared")
	}
	checkSize(t, cache, 0, "after clear")
	if got := policy.Len(); got != 0 {
		t.Fatalf("policy still retains %d entries after clear", got)
	}
	mustPanicWith(t, weakcache.ErrNotOwned, func() {
		cache.Used(entry, weakcache.Inherit)
	})
	cache.SetValue(1, 1)
	checkGet(t, cache, 1, 1, "re-added after clear")
}

func scalarSurvives(t *testing.T) {
	t.Parallel()
	const (
		capacity = 64
		key      = -1
		value    = 42
		useEvery = capacity / 4
	)
	cache := newCache[int, int](t, weakcache.Config[int, int]{
		Capacity: capacity,
	})
	cache.SetValue(key, value)
	for i := range capacity * 20 {
		cache.SetValue(i, i)
		if i%useEvery == 0 {
			checkGet(t, cache, key, value, "while under pressure")
		}
		if i%capacity == 0 {
			runtime.GC()
		}
	}
	checkGet(t, cache, key, value, "after pressure")
}

func ownership(t *testing.T) {
	t.Parallel()
	var (
		owner   = newCache[string, int](t, weakcache.Config[string, int]{})
		other   = newCache[string, int](t, weakcache.Config[string, int]{})
		foreign = weakcache.NewEntry("foreign", 1, nil)
	)
	owner.SetValue("owned", 1)
	entry, _ := owner.Get("owned", weakcache.Peek)
	t.Run("used", func(t *testing.T) {
		mustPanicWith(t, weakcache.ErrNotOwned, func() {
			other.Used(entry, weakcache.Inherit)
		})
		mustPanicWith(t, weakcache.ErrNotOwned, func() {
			other.Used(foreign, weakcache.Inherit)
		})
	})
	t.Run("insert", func(t *testing.T) {
		mustPanicWith(t, weakcache.ErrNotOwned, func() {
			other.Set("stolen", entry, weakcache.Inherit)
		})
	})
	t.Run("policy", func(t *testing.T) {
		var (
			first  = newTiered[string, int](t, 4)
			second = newTiered[string, int](t, 4)
			loose  = weakcache.NewEntry("loose", 1, nil)
		)
		first.Admit(loose, weakcache.Inherit)
		mustPanicWith(t, weakcache.ErrNotOwned, func() {
			second.Touch(loose, weakcache.Inherit)
		})
	})
	t.Run("owner unaffected", func(t *testing.T) {
		owner.Used(entry, weakcache.Inherit)
		checkGet(t, owner, "owned", 1, "after misrouted uses")
	})
}

func disabled(t *testing.T) {
	t.Parallel()
	const key = "kept"
	var (
		cache = newWeakCache(t, weakcache.Config[string, *payload]{
			Disabled: true,
		})
		value = &payload{name: key}
	)
	cache.SetValue(key, value)
	entry, ok := cache.Get(key, weakcache.Peek)
	if !ok || entry.Held() {
		t.Fatal("expected a disabled cache to only observe its value")
	}
	checkGet(t, cache, key, value, "observed value is alive")
	if entry.Held() {
		t.Fatal("expected use to soft-demote again")
	}
	cache.SetValuePriority(key, value, weakcache.Pin)
	entry, _ = cache.Get(key, weakcache.Use)
	if !entry.Held() || !entry.Pinned() {
		t.Fatal("expected a pinned entry to be held")
	}
	runtime.KeepAlive(value)
}

func newCache[Key comparable, Value any](tb testing.TB, config weakcache.Config[Key, Value]) *weakcache.Cache[Key, Value] {
	tb.Helper()
	cache, err := weakcache.New(config)
	if err != nil {
		tb.Fatal(err)
	}
	return cache
}

func newWeakCache[Key comparable](tb testing.TB, config weakcache.Config[Key, *payload]) *weakcache.Cache[Key, *payload] {
	tb.Helper()
	cache, err := weakcache.NewWeak(config)
	if err != nil {
		tb.Fatal(err)
	}
	return cache
}

func newTiered[Key comparable, Value any](tb testing.TB, capacity int) *weakcache.TieredPolicy[Key, Value] {
	tb.Helper()
	policy, err := weakcache.NewTiered[Key, Value](capacity)
	if err != nil {
		tb.Fatal(err)
	}
	return policy
}

func mustMiss[
	Key comparable,
	Value any,
](
	tb testing.TB,
	cache *weakcache.Cache[Key, Value],
	key Key, why string,
) {
	tb.Helper()
	value, ok := cache.GetValue(key)
	if !ok {
		return
	}
	tb.Fatalf(
		"expected miss due to %s but got: %v %t",
		why, value, ok)
}

func mustGet[
	Key comparable, Value any,
](
	tb testing.TB,
	cache *weakcache.Cache[Key, Value],
	key Key,
) Value {
	tb.Helper()
	if got, ok := cache.GetValue(key); ok {
		return got
	}
	tb.Fatalf("expected value from GetValue for key %v", key)
	var zero Value
	return zero
}

func checkGet[
	Key comparable, Value comparable,
](
	tb testing.TB,
	cache *weakcache.Cache[Key, Value],
	key Key, want Value, msg string,
) {
	tb.Helper()
	got, ok := cache.GetValue(key)
	if !ok {
		tb.Fatalf(
			"expected value from GetValue for key `%v` - %s",
			key, msg)
	}
	if got == want {
		return
	}
	tb.Fatalf(
		"expected value to match - %s"+
			"\n\tgot: %v"+
			"\n\twant: %v",
		msg, got, want)
}

func checkSize[
	Key comparable, Value any,
](
	tb testing.TB,
	cache *weakcache.Cache[Key, Value],
	size int, action string,
) {
	tb.Helper()
	got := cache.Len()
	if got == size {
		return
	}
	tb.Fatalf(
		"expected cache to be specific size %s"+
			"\n\tgot: %d"+
			"\n\twant: %d",
		action, got, size)
}

func keysMatch[
	Key comparable,
	Value any,
](
	tb testing.TB,
	cache *weakcache.Cache[Key, Value],
	want []Key, msg string,
) {
	tb.Helper()
	counts := make(map[Key]int, len(want))
	for _, key := range want {
		counts[key]++
	}
	var got []Key
	for key := range cache.Keys() {
		got = append(got, key)
		counts[key]--
	}
	for _, count := range counts {
		if count != 0 {
			tb.Fatalf(
				"%s"+
					"\n\twant: %v"+
					"\n\tgot: %v",
				msg, want, got)
		}
	}
}

func mustPanicWith(tb testing.TB, want error, fn func()) {
	tb.Helper()
	defer func() {
		tb.Helper()
		recovered := recover()
		err, ok := recovered.(error)
		if !ok || !errors.Is(err, want) {
			tb.Fatalf(
				"expected panic with %q"+
					"\n\tgot: %v",
				want, recovered)
		}
	}()
	fn()
}

func addIncrementingInts(cache *weakcache.Cache[int, int], end int) {
	for i := range end {
		indexed := i + 1
		cache.SetValue(indexed, indexed)
	}
}
