package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionManager_SequentialVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got := f.saveVersion(t, "wf", twoStepDefinition)
		assert.Equal(t, want, got)
	}

	current, err := f.versions.CurrentVersion(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, 3, current.Version)

	list, err := f.versions.ListVersions(ctx, "wf")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	// other workflows count independently
	assert.Equal(t, 1, f.saveVersion(t, "other", twoStepDefinition))
}

func TestVersionManager_SnapshotsAreImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.saveVersion(t, "wf", twoStepDefinition)
	f.saveVersion(t, "wf", `{"name":"changed","steps":[{"name":"only","action":"fail"}]}`)

	def, err := f.versions.Definition(ctx, "wf", 1)
	require.NoError(t, err)
	assert.Equal(t, "nightly", def.Name)
	require.Len(t, def.Steps, 2)
	assert.Equal(t, "first", def.Steps[0].Name)
}

func TestVersionManager_GetMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.versions.GetVersion(context.Background(), "wf", 1)
	assert.True(t, errors.Is(err, ErrVersionNotFound))
	_, err = f.versions.CurrentVersion(context.Background(), "wf")
	assert.True(t, errors.Is(err, ErrVersionNotFound))
}

func TestParseDefinition_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"no steps":       `{"name":"x","steps":[]}`,
		"unnamed step":   `{"steps":[{"name":" ","action":"log"}]}`,
		"no action":      `{"steps":[{"name":"a"}]}`,
		"duplicate name": `{"steps":[{"name":"a","action":"log"},{"name":"a","action":"log"}]}`,
		"unknown field":  `{"steps":[{"name":"a","action":"log"}],"retries":3}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(raw))
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestVersionManager_RejectsInvalidWithoutAppending(t *testing.T) {
	f := newFixture(t)
	_, err := f.versions.SaveVersion(context.Background(), "wf", []byte(`{"steps":[]}`))
	assert.ErrorIs(t, err, ErrInvalidDefinition)
	_, err = f.versions.SaveVersion(context.Background(), "", []byte(twoStepDefinition))
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	list, err := f.versions.ListVersions(context.Background(), "wf")
	require.NoError(t, err)
	assert.Empty(t, list)
}
