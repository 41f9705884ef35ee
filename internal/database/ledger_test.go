package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextInvoiceNumber_Sequence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	first, err := db.NextInvoiceNumber(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "INV-RS-000001-01-2025", first)

	second, err := db.NextInvoiceNumber(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "INV-RS-000002-01-2025", second)
}

func TestNextInvoiceNumber_ResetsPerYear(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.NextInvoiceNumber(ctx, time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	next, err := db.NextInvoiceNumber(ctx, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "INV-RS-000001-01-2026", next)
}

func TestNextInvoiceNumber_UniqueUnderContention(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	numbers := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := db.NextInvoiceNumber(ctx, at)
			if assert.NoError(t, err) {
				numbers <- n
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for n := range numbers {
		assert.False(t, seen[n], "number %s allocated twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, 20)
}
