package main

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	s, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.close() })
	return map[string]Store{
		"memory": NewMemoryDB(),
		"sqlite": s,
	}
}

func newProfile(id string, firehearts int, edited time.Time) *Profile {
	return &Profile{
		InternalID:  uuid.NewString(),
		ID:          id,
		Name:        "name-" + id,
		Email:       id + "@example.com",
		Firehearts:  firehearts,
		Image:       ProfileImage{URL: "http://localhost:3001/profile/image/" + id + ".jpg", Blurhash: "LKO2?U%2Tw=w]~RBVZRi};RPxuwH"},
		LastEdited:  edited,
		YearOfStudy: 1,
	}
}

func TestStoreProfileLifecycle(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			edited := time.Now().Truncate(time.Millisecond)
			p := newProfile("u1", 600, edited)
			require.NoError(t, store.CreateProfile(p))

			got, err := store.GetProfile("u1")
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Equal(t, p.InternalID, got.InternalID)
			require.Equal(t, "name-u1", got.Name)
			require.Equal(t, 600, got.Firehearts)
			require.Equal(t, p.Image, got.Image)
			require.Equal(t, edited.UnixMilli(), got.LastEdited.UnixMilli())

			// duplicate external id must be rejected
			require.Error(t, store.CreateProfile(newProfile("u1", 600, edited)))

			got.Firehearts = 620
			got.YearOfStudy = 3
			require.NoError(t, store.SaveProfile(got))

			again, err := store.GetProfile("u1")
			require.NoError(t, err)
			require.Equal(t, 620, again.Firehearts)
			require.Equal(t, 3, again.YearOfStudy)

			missing, err := store.GetProfile("ghost")
			require.NoError(t, err)
			require.Nil(t, missing)

			require.Error(t, store.SaveProfile(newProfile("ghost", 1, edited)))
		})
	}
}

func TestStoreRankOf(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now()
			require.NoError(t, store.CreateProfile(newProfile("a", 900, now)))
			require.NoError(t, store.CreateProfile(newProfile("b", 700, now)))
			require.NoError(t, store.CreateProfile(newProfile("c", 500, now)))

			rank, err := store.RankOf(900)
			require.NoError(t, err)
			require.Equal(t, 1, rank)

			rank, err = store.RankOf(700)
			require.NoError(t, err)
			require.Equal(t, 2, rank)

			rank, err = store.RankOf(500)
			require.NoError(t, err)
			require.Equal(t, 3, rank)
		})
	}
}

func TestStoreTopProfiles(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
			require.NoError(t, store.CreateProfile(newProfile("late-900", 900, base.Add(20*time.Minute))))
			require.NoError(t, store.CreateProfile(newProfile("early-900", 900, base)))
			require.NoError(t, store.CreateProfile(newProfile("only-700", 700, base.Add(10*time.Minute))))

			top, err := store.TopProfiles(2)
			require.NoError(t, err)
			require.Len(t, top, 2)
			require.Equal(t, "early-900", top[0].ID)
			require.Equal(t, "late-900", top[1].ID)

			all, err := store.TopProfiles(10)
			require.NoError(t, err)
			require.Len(t, all, 3)
			require.Equal(t, "only-700", all[2].ID)
		})
	}
}

func TestStoreSampleProfiles(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 6; i++ {
				require.NoError(t, store.CreateProfile(newProfile(fmt.Sprintf("u%d", i), 600, time.Now())))
			}

			sample, err := store.SampleProfiles(3)
			require.NoError(t, err)
			require.Len(t, sample, 3)

			seen := map[string]bool{}
			for _, p := range sample {
				require.False(t, seen[p.ID], "sample must not repeat profiles")
				seen[p.ID] = true
			}

			// asking for more than exist returns everything
			sample, err = store.SampleProfiles(100)
			require.NoError(t, err)
			require.Len(t, sample, 6)
		})
	}
}

func TestStoreRefreshCredentials(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.CreateRefreshCredential("tok-1", "u1"))
			require.NoError(t, store.CreateRefreshCredential("tok-2", "u1"))
			require.NoError(t, store.CreateRefreshCredential("tok-3", "u2"))

			c, err := store.GetRefreshCredential("tok-1")
			require.NoError(t, err)
			require.NotNil(t, c)
			require.Equal(t, "u1", c.UserID)

			missing, err := store.GetRefreshCredential("unknown")
			require.NoError(t, err)
			require.Nil(t, missing)

			require.NoError(t, store.DeleteRefreshCredentialsForUser("u1"))

			for _, tok := range []string{"tok-1", "tok-2"} {
				c, err := store.GetRefreshCredential(tok)
				require.NoError(t, err)
				require.Nil(t, c, "all credentials for the user must be gone")
			}

			// other users are untouched
			c, err = store.GetRefreshCredential("tok-3")
			require.NoError(t, err)
			require.NotNil(t, c)
		})
	}
}
