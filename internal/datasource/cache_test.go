package datasource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
)

type fakeSource struct {
	records    []contact.Record
	version    time.Time
	loads      int
	loadErr    error
	versionErr error
}

func (f *fakeSource) Contacts(context.Context) ([]contact.Record, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.records, nil
}

func (f *fakeSource) Columns(context.Context) ([]string, error)          { return Columns, nil }
func (f *fakeSource) Duplicates(context.Context) (map[string]int, error) { return nil, nil }
func (f *fakeSource) Statistics(context.Context) (Statistics, error)     { return Statistics{}, nil }

func (f *fakeSource) Version(context.Context) (time.Time, error) {
	return f.version, f.versionErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCache_ReloadsOnlyWhenVersionChanges(t *testing.T) {
	src := &fakeSource{
		records: []contact.Record{{PhoneNumber: "111"}},
		version: time.Unix(100, 0),
	}
	c := NewCache(src, quietLogger())
	ctx := context.Background()

	got, err := c.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = c.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.loads)

	src.version = time.Unix(200, 0)
	src.records = append(src.records, contact.Record{PhoneNumber: "222"})
	got, err = c.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, src.loads)
}

func TestCache_Invalidate(t *testing.T) {
	src := &fakeSource{version: time.Unix(100, 0)}
	c := NewCache(src, quietLogger())
	ctx := context.Background()

	_, err := c.Records(ctx)
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loads)
}

func TestCache_LoadErrorIsReturned(t *testing.T) {
	loadErr := &LoadError{Op: "contacts", Err: errors.New("disk on fire")}
	src := &fakeSource{version: time.Unix(100, 0), loadErr: loadErr}
	c := NewCache(src, quietLogger())

	got, err := c.Records(context.Background())
	assert.Nil(t, got)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "contacts", le.Op)
	assert.EqualError(t, err, "load contacts: disk on fire")
}

func TestCache_MissingSource(t *testing.T) {
	src := &fakeSource{versionErr: ErrSourceMissing}
	c := NewCache(src, quietLogger())

	_, err := c.Records(context.Background())
	assert.ErrorIs(t, err, ErrSourceMissing)
	assert.Equal(t, 0, src.loads)
}
