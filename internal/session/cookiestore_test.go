package session

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/silknet/cordscope/api/schemas"
)

func TestCookieStore(t *testing.T) {
	newStore := func(t *testing.T) (*CookieStore, string) {
		path := filepath.Join(t.TempDir(), "nested", "session.json")
		return NewCookieStore(path, zap.NewNop()), path
	}

	sample := []schemas.Cookie{
		{Name: "token", Value: "abc123", Domain: ".discord.com", Path: "/", HTTPOnly: true, Secure: true},
		{Name: "locale", Value: "en-US", Domain: ".discord.com", Path: "/"},
	}

	t.Run("save then load round-trips", func(t *testing.T) {
		store, _ := newStore(t)
		require.NoError(t, store.Save(sample))

		loaded, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, sample, loaded)
	})

	t.Run("absent file loads as no session", func(t *testing.T) {
		store, _ := newStore(t)
		loaded, err := store.Load()
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("corrupt file loads as no session", func(t *testing.T) {
		store, path := newStore(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		loaded, err := store.Load()
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("save creates parent directories", func(t *testing.T) {
		store, path := newStore(t)
		require.NoError(t, store.Save(sample))
		_, err := os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("file mode is owner-only", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("file modes are not meaningful on windows")
		}
		store, path := newStore(t)
		require.NoError(t, store.Save(sample))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("save leaves no temp files behind", func(t *testing.T) {
		store, path := newStore(t)
		require.NoError(t, store.Save(sample))

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "session.json", entries[0].Name())
	})

	t.Run("clear removes the file and tolerates absence", func(t *testing.T) {
		store, path := newStore(t)
		require.NoError(t, store.Save(sample))
		require.NoError(t, store.Clear())

		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
		assert.NoError(t, store.Clear())
	})

	t.Run("concurrent saves never corrupt the blob", func(t *testing.T) {
		store, _ := newStore(t)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = store.Save(sample)
			}()
		}
		wg.Wait()

		loaded, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, sample, loaded)
	})
}
