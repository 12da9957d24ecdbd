package cache

import (
	"context"
	"testing"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
)

func monthRecord(areaID int64, year int, month time.Month) domain.TimeseriesRecord {
	return domain.TimeseriesRecord{
		AreaID:         areaID,
		Month:          time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		MeanBrightness: 4.2,
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(Config{TTL: time.Minute})

	from := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.TimeseriesRecord{monthRecord(1, 2020, time.January)}
	c.Set(ctx, 1, &from, nil, records)

	got, ok := c.Get(ctx, 1, &from, nil)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 1 || !got[0].Month.Equal(records[0].Month) {
		t.Fatalf("got %+v", got)
	}

	if _, ok := c.Get(ctx, 1, nil, nil); ok {
		t.Fatal("different range must not hit")
	}
	if _, ok := c.Get(ctx, 2, &from, nil); ok {
		t.Fatal("different area must not hit")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(Config{TTL: time.Millisecond})

	c.Set(ctx, 1, nil, nil, []domain.TimeseriesRecord{monthRecord(1, 2020, time.May)})
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(ctx, 1, nil, nil); ok {
		t.Fatal("expired entry must miss")
	}
}

func TestMemoryCacheInvalidateArea(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(Config{TTL: time.Minute})

	from := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	c.Set(ctx, 1, nil, nil, []domain.TimeseriesRecord{monthRecord(1, 2020, time.January)})
	c.Set(ctx, 1, &from, nil, []domain.TimeseriesRecord{monthRecord(1, 2020, time.January)})
	c.Set(ctx, 2, nil, nil, []domain.TimeseriesRecord{monthRecord(2, 2020, time.January)})

	c.InvalidateArea(ctx, 1)

	if _, ok := c.Get(ctx, 1, nil, nil); ok {
		t.Fatal("area 1 open range should be invalidated")
	}
	if _, ok := c.Get(ctx, 1, &from, nil); ok {
		t.Fatal("area 1 bounded range should be invalidated")
	}
	if _, ok := c.Get(ctx, 2, nil, nil); !ok {
		t.Fatal("area 2 must survive invalidation of area 1")
	}
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(Config{TTL: time.Minute, MaxEntries: 2})

	first := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC)
	third := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)

	c.Set(ctx, 1, &first, &first, nil)
	time.Sleep(time.Millisecond)
	c.Set(ctx, 1, &second, &second, nil)
	time.Sleep(time.Millisecond)
	c.Set(ctx, 1, &third, &third, nil)

	if _, ok := c.Get(ctx, 1, &first, &first); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.Get(ctx, 1, &third, &third); !ok {
		t.Fatal("newest entry must remain")
	}
}
