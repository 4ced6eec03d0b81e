package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avdeevsm/blogger-backend/internal/token"
	"github.com/golang-jwt/jwt/v5"
)

func TestLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createConfirmedUser(t, "bob", "bob@example.com", "password1")

	t.Run("by login", func(t *testing.T) {
		pair, err := env.auth.Login(ctx, "bob", "password1", "device", "127.0.0.1")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if pair.AccessToken == "" || pair.RefreshToken == "" {
			t.Fatal("Login returned an empty token")
		}
	})

	t.Run("by email", func(t *testing.T) {
		if _, err := env.auth.Login(ctx, "bob@example.com", "password1", "device", "127.0.0.1"); err != nil {
			t.Fatalf("Login by email failed: %v", err)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := env.auth.Login(ctx, "bob", "nope", "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Login = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := env.auth.Login(ctx, "nobody", "password1", "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Login = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("unconfirmed email", func(t *testing.T) {
		unconfirmed := env.createConfirmedUser(t, "alice", "alice@example.com", "password1")
		if err := env.db.Model(unconfirmed).Update("email_confirmed", false).Error; err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if _, err := env.auth.Login(ctx, "alice", "password1", "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Login = %v, want ErrUnauthorized", err)
		}
	})

	// Two logins above succeeded, each on its own device slot.
	if n := env.sessionCount(t, user.ID); n != 2 {
		t.Fatalf("sessions = %d, want 2", n)
	}
}

func TestRefreshRotates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createConfirmedUser(t, "bob", "bob@example.com", "password1")

	pair, err := env.auth.Login(ctx, "bob", "password1", "device", "127.0.0.1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	rotated, err := env.auth.Refresh(ctx, pair.RefreshToken, "device", "127.0.0.1")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token did not rotate")
	}
	if rotated.AccessToken == pair.AccessToken {
		t.Fatal("access token did not rotate")
	}

	// The old token is permanently revoked.
	revoked, err := env.blacklist.IsRevoked(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if !revoked {
		t.Fatal("old refresh token not in the blacklist after rotation")
	}
	if _, err := env.auth.Refresh(ctx, pair.RefreshToken, "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Refresh with stale token = %v, want ErrUnauthorized", err)
	}

	// Device identity persists across rotation, so still one session.
	oldClaims, err := env.codec.Verify(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	newClaims, err := env.codec.Verify(rotated.RefreshToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if token.StringClaim(oldClaims, "deviceId") != token.StringClaim(newClaims, "deviceId") {
		t.Fatal("deviceId changed across rotation")
	}
	if n := env.sessionCount(t, user.ID); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}

	// The rotated token works.
	if _, err := env.auth.Refresh(ctx, rotated.RefreshToken, "device", "127.0.0.1"); err != nil {
		t.Fatalf("Refresh with rotated token failed: %v", err)
	}
}

func TestRefreshRejects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createConfirmedUser(t, "bob", "bob@example.com", "password1")

	t.Run("absent token", func(t *testing.T) {
		if _, err := env.auth.Refresh(ctx, "", "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Refresh = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("malformed token", func(t *testing.T) {
		if _, err := env.auth.Refresh(ctx, "not-a-token", "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Refresh = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("foreign signature", func(t *testing.T) {
		forged, err := token.NewCodec("other-secret").Issue(jwt.MapClaims{
			"sub": user.ID.String(), "deviceId": "11111111-1111-1111-1111-111111111111",
		}, time.Hour)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if _, err := env.auth.Refresh(ctx, forged, "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Refresh = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		// Valid signature, not revoked, but iat+expiresIn is in the past.
		expired, err := env.codec.Issue(jwt.MapClaims{
			"sub": user.ID.String(), "deviceId": "11111111-1111-1111-1111-111111111111",
		}, -time.Minute)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if _, err := env.auth.Refresh(ctx, expired, "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Refresh = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("missing deviceId claim", func(t *testing.T) {
		incomplete, err := env.codec.Issue(jwt.MapClaims{"sub": user.ID.String()}, time.Hour)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if _, err := env.auth.Refresh(ctx, incomplete, "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Refresh = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("deleted user", func(t *testing.T) {
		pair, err := env.auth.Login(ctx, "bob", "password1", "device", "127.0.0.1")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if err := env.db.Delete(user).Error; err != nil {
			t.Fatalf("delete user failed: %v", err)
		}
		if _, err := env.auth.Refresh(ctx, pair.RefreshToken, "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Refresh = %v, want ErrUnauthorized", err)
		}
	})
}

func TestRefreshNoMutationOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createConfirmedUser(t, "bob", "bob@example.com", "password1")

	pair, err := env.auth.Login(ctx, "bob", "password1", "device", "127.0.0.1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := env.auth.Refresh(ctx, "garbage", "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Refresh = %v, want ErrUnauthorized", err)
	}

	// A rejected refresh leaves the valid token valid and the session intact.
	revoked, err := env.blacklist.IsRevoked(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if revoked {
		t.Fatal("valid token revoked by a failed refresh")
	}
	if n := env.sessionCount(t, user.ID); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createConfirmedUser(t, "bob", "bob@example.com", "password1")

	pair, err := env.auth.Login(ctx, "bob", "password1", "device", "127.0.0.1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.auth.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if n := env.sessionCount(t, user.ID); n != 0 {
		t.Fatalf("sessions = %d, want 0", n)
	}

	// Logout then refresh with the same token fails.
	if _, err := env.auth.Refresh(ctx, pair.RefreshToken, "device", "127.0.0.1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Refresh after logout = %v, want ErrUnauthorized", err)
	}

	// Logging out twice fails too: the token is already revoked.
	if err := env.auth.Logout(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("second Logout = %v, want ErrUnauthorized", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createConfirmedUser(t, "bob", "bob@example.com", "password1")

	pair, err := env.auth.Login(ctx, "bob", "password1", "device", "127.0.0.1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.auth.Refresh(ctx, pair.RefreshToken, "device", "127.0.0.1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var winners, losers int
	for err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrUnauthorized):
			losers++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if losers != callers-1 {
		t.Fatalf("losers = %d, want %d", losers, callers-1)
	}
}

func TestCurrentUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createConfirmedUser(t, "bob", "bob@example.com", "password1")

	got, err := env.auth.CurrentUser(ctx, user.ID.String())
	if err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if got.Login != "bob" || got.Email != "bob@example.com" {
		t.Fatalf("CurrentUser returned %q/%q", got.Login, got.Email)
	}

	if _, err := env.auth.CurrentUser(ctx, "not-a-uuid"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("CurrentUser = %v, want ErrUnauthorized", err)
	}
}
