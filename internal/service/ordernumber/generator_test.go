package ordernumber

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/database/databasetest"
	"github.com/Additional-Code/relay/internal/repository/counter"
)

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	repo := counter.NewRepository(databasetest.New(t))
	return NewGenerator(repo, config.Config{Relay: config.Relay{FallbackPrefix: "X"}})
}

func TestKey(t *testing.T) {
	g := NewGenerator(nil, config.Config{Relay: config.Relay{FallbackPrefix: "X"}})

	cases := map[string]string{
		"Ecostore":     "E",
		"ecostore":     "E",
		"  orchard":    "O",
		"Ölmühle":      "Ö",
		"42 Deli":      "X",
		"":             "X",
		"★ Star Goods": "X",
	}
	for name, want := range cases {
		assert.Equal(t, want, g.Key(name), "key for %q", name)
	}
}

func TestNextStartsAtOnePerPrefix(t *testing.T) {
	g := newGenerator(t)
	ctx := context.Background()

	first, err := g.Next(ctx, "Ecostore")
	require.NoError(t, err)
	second, err := g.Next(ctx, "Emerald Bakery")
	require.NoError(t, err)
	other, err := g.Next(ctx, "Orchard")
	require.NoError(t, err)

	assert.Equal(t, "E1", first)
	assert.Equal(t, "E2", second)
	assert.Equal(t, "O1", other)
}

func TestNextConcurrentIsContiguous(t *testing.T) {
	g := newGenerator(t)
	ctx := context.Background()

	const callers = 25
	var (
		mu      sync.Mutex
		numbers []int
		wg      sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := g.Next(ctx, "Ecostore")
			if !assert.NoError(t, err) {
				return
			}
			value, err := strconv.Atoi(strings.TrimPrefix(number, "E"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, value)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, callers)
	sort.Ints(numbers)
	for i, v := range numbers {
		assert.Equal(t, i+1, v)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "E12", Normalize(" e12 "))
	assert.Equal(t, "", Normalize("   "))
	assert.Equal(t, "E3", Format("E", 3))
}
