package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

func TestResultsDeduplicatesByDN(t *testing.T) {
	r := newResults(0, 10)
	ctx := context.Background()

	assert.True(t, r.emit(ctx, directory.NewEntry("id=1,ou=users,dc=example,dc=com")))
	assert.True(t, r.emit(ctx, directory.NewEntry("ID=1,OU=Users,DC=Example,DC=Com")))
	assert.True(t, r.emit(ctx, directory.NewEntry("id=2,ou=users,dc=example,dc=com")))
	r.finish()

	entries, err := r.All()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "id=1,ou=users,dc=example,dc=com", entries[0].DN)
	assert.Equal(t, result.Success, r.Code())
}

func TestResultsSizeLimit(t *testing.T) {
	tests := []struct {
		name    string
		emitted int
		limit   int
		want    int
		code    result.Code
	}{
		{name: "below limit", emitted: 2, limit: 3, want: 2, code: result.Success},
		{name: "at limit", emitted: 3, limit: 3, want: 3, code: result.Success},
		{name: "above limit", emitted: 5, limit: 3, want: 3, code: result.SizeLimitExceeded},
		{name: "unlimited", emitted: 5, limit: 0, want: 5, code: result.Success},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResults(tt.limit, 10)
			for i := 0; i < tt.emitted; i++ {
				r.emit(context.Background(), directory.NewEntry("id="+string(rune('a'+i))+",dc=example"))
			}
			r.finish()

			entries, _ := r.All()
			assert.Len(t, entries, tt.want)
			assert.Equal(t, tt.code, r.Code())
		})
	}
}

func TestResultsFailKeepsFirstError(t *testing.T) {
	r := newResults(0, 1)
	r.fail(result.Errorf(result.Busy, "", "", "locked"))
	r.fail(errors.New("second"))
	r.finish()

	assert.True(t, r.stopped())
	assert.False(t, r.emit(context.Background(), directory.NewEntry("id=1,dc=example")))
	_, err := r.All()
	assert.Equal(t, result.Busy, result.CodeOf(err))
}

func TestResultsCloseStopsProducers(t *testing.T) {
	r := newResults(0, 0)
	go func() {
		r.emit(context.Background(), directory.NewEntry("id=1,dc=example"))
		r.finish()
	}()

	require.NoError(t, r.Close())
	assert.True(t, r.stopped())
	assert.NoError(t, r.Err())
}
