package project_test

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/native/nativetest"
	"github.com/binal-re/binal/internal/object"
	"github.com/binal-re/binal/internal/project"
	"github.com/binal-re/binal/internal/testutil"
)

var (
	i32 = object.NewType("int32_t", 4, 4, object.Int{Signed: true})
	cfg = object.NewType("config", 4, 4, object.Struct{Fields: []object.Field{{Name: "v", FieldType: "int32_t"}}})
	fn  = object.NewFunction("main", 0x1000, "int32_t")
	gv  = object.NewGlobal("g_cfg", 0x2000, "config")
)

func TestStore_PutAndLoadKeepFirstStoredOrder(t *testing.T) {
	ctx := testutil.NewTestContext(t)
	store := testutil.NewTestProject(t)

	require.NoError(t, store.Put(ctx, object.NewObjects(i32, cfg)))
	require.NoError(t, store.Put(ctx, object.NewObjects(gv, fn)))

	changed := object.NewType("config", 8, 4, object.Struct{Fields: []object.Field{
		{Name: "v", FieldType: "int32_t"},
		{Name: "w", Offset: 4, FieldType: "int32_t"},
	}})
	require.NoError(t, store.Put(ctx, object.NewObjects(changed)))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"int32_t", "config", "g_cfg", "main"}, loaded.Names())

	got, ok := loaded.Get("config")
	require.True(t, ok)
	gotDigest, err := object.Digest(got)
	require.NoError(t, err)
	wantDigest, err := object.Digest(changed)
	require.NoError(t, err)
	assert.Equal(t, wantDigest, gotDigest)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStore_ReplaceDropsMissingNames(t *testing.T) {
	ctx := testutil.NewTestContext(t)
	store := testutil.NewTestProject(t)

	require.NoError(t, store.Put(ctx, object.NewObjects(i32, cfg, fn, gv)))
	require.NoError(t, store.Replace(ctx, object.NewObjects(i32, fn)))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"int32_t", "main"}, loaded.Names())
}

func TestStore_Delete(t *testing.T) {
	ctx := testutil.NewTestContext(t)
	store := testutil.NewTestProject(t)

	require.NoError(t, store.Put(ctx, object.NewObjects(i32, cfg)))
	require.NoError(t, store.Delete(ctx, "config"))
	require.NoError(t, store.Delete(ctx, "never_stored"))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ListByKind(t *testing.T) {
	ctx := testutil.NewTestContext(t)
	store := testutil.NewTestProject(t)
	require.NoError(t, store.Put(ctx, object.NewObjects(i32, cfg, fn, gv)))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "config", all[0].Name)
	assert.Equal(t, object.KindType, all[0].Kind)

	want, err := object.Digest(cfg)
	require.NoError(t, err)
	assert.Equal(t, want, all[0].Digest)
	assert.False(t, all[0].UpdatedAt.IsZero())

	funcs, err := store.List(ctx, object.KindFunction)
	require.NoError(t, err)
	require.Len(t, funcs, 1)
	assert.Equal(t, "main", funcs[0].Name)

	globals, err := store.List(ctx, object.KindGlobal)
	require.NoError(t, err)
	require.Len(t, globals, 1)
	assert.Equal(t, "g_cfg", globals[0].Name)
}

func TestStore_InMemory(t *testing.T) {
	ctx := testutil.NewTestContext(t)
	store, err := project.Open("", zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, object.NewObjects(i32)))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, store.Checkpoint(ctx))
}

func TestStore_ReopenAndReadOnly(t *testing.T) {
	ctx := testutil.NewTestContext(t)
	path := filepath.Join(t.TempDir(), "nested", "project.duckdb")

	store, err := project.Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, object.NewObjects(i32, cfg)))
	require.NoError(t, store.Close())

	ro, err := project.OpenReadOnly(path, zerolog.Nop())
	require.NoError(t, err)
	defer ro.Close()

	assert.Equal(t, path, ro.Path())
	loaded, err := ro.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"int32_t", "config"}, loaded.Names())

	assert.Error(t, ro.Put(ctx, object.NewObjects(fn)))
}

func TestStore_SaveViewAndLoadInto(t *testing.T) {
	ctx := testutil.NewTestContext(t)
	store := testutil.NewTestProject(t)

	src := native.NewMemView()
	nativetest.Program(t, src)
	nativetest.LinkedNode(t, src)

	saved, err := store.SaveView(ctx, src)
	require.NoError(t, err)
	assert.Positive(t, saved)

	dst := native.NewMemView()
	loaded, err := store.LoadInto(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)

	f, ok := dst.FunctionByName("process")
	require.True(t, ok)
	assert.Equal(t, "int32_t(T1*, uint64_t)", f.Type.String())

	node, ok := dst.TypeByName("node")
	require.True(t, ok)
	assert.Len(t, node.Members, 2)

	// Saving a smaller view prunes the rest.
	require.True(t, src.RemoveFunction(0x401000))
	_, err = store.SaveView(ctx, src)
	require.NoError(t, err)

	entries, err := store.List(ctx, object.KindFunction)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
