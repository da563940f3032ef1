// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/sistemapos/posadmin/internal/auth"
	"github.com/sistemapos/posadmin/internal/auth/postgres"
)

// createUser inserts a user with a unique username and removes it afterwards.
func createUser(ctx context.Context, users *postgres.UserRepository, role string) (int64, string) {
	username := "u_" + ulid.Make().String()
	email := username + "@Example.com"
	id, err := users.Create(ctx, postgres.NewUser{
		Email:        &email,
		Username:     username,
		Role:         role,
		FullName:     "Test " + username,
		Salt:         "salt",
		PasswordHash: "hash",
	})
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, id)
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	})
	return id, username
}

var _ = Describe("UserRepository", func() {
	var (
		ctx   context.Context
		users *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = postgres.NewUserRepository(testPool)
	})

	It("finds users by username or email case-insensitively", func() {
		id, username := createUser(ctx, users, auth.RoleSeller)

		byName, err := users.FindByIdentifier(ctx, "U"+username[1:])
		Expect(err).NotTo(HaveOccurred())
		Expect(byName.ID).To(Equal(id))

		byEmail, err := users.FindByIdentifier(ctx, username+"@EXAMPLE.COM")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(id))
		Expect(byEmail.Active).To(BeTrue())
	})

	It("returns ErrNotFound for unknown identifiers", func() {
		_, err := users.FindByIdentifier(ctx, "nobody_"+ulid.Make().String())
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("rejects duplicate usernames", func() {
		_, username := createUser(ctx, users, auth.RoleSeller)
		_, err := users.Create(ctx, postgres.NewUser{Username: username, Role: auth.RoleSeller})
		Expect(err).To(MatchError(postgres.ErrDuplicateUser))
	})

	It("updates the password", func() {
		id, _ := createUser(ctx, users, auth.RoleAdmin)
		Expect(users.UpdatePassword(ctx, id, "newsalt", "newhash")).To(Succeed())

		u, err := users.GetByID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(u.Salt).To(Equal("newsalt"))
		Expect(u.PasswordHash).To(Equal("newhash"))
	})
})

var _ = Describe("SessionRepository", func() {
	var (
		ctx      context.Context
		users    *postgres.UserRepository
		now      time.Time
		mu       sync.Mutex
		sessions *postgres.SessionRepository
	)

	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Now().UTC().Truncate(time.Microsecond)
		users = postgres.NewUserRepository(testPool)
		sessions = postgres.NewSessionRepository(testPool, postgres.WithClock(clock))
	})

	It("ensures the schema concurrently without error", func() {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- postgres.NewSessionRepository(testPool).EnsureSchema(ctx)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			Expect(err).NotTo(HaveOccurred())
		}
	})

	It("creates concurrent sessions for the same user", func() {
		id, _ := createUser(ctx, users, auth.RoleSeller)

		const logins = 16
		var wg sync.WaitGroup
		ids := make(chan string, logins)
		errs := make(chan error, logins)
		for range logins {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sid, err := sessions.Create(ctx, id, time.Hour)
				if err != nil {
					errs <- err
					return
				}
				ids <- sid
			}()
		}
		wg.Wait()
		close(ids)
		close(errs)
		for err := range errs {
			Expect(err).NotTo(HaveOccurred())
		}

		seen := make(map[string]struct{}, logins)
		for sid := range ids {
			Expect(seen).NotTo(HaveKey(sid))
			seen[sid] = struct{}{}

			u, err := sessions.Validate(ctx, sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(u).NotTo(BeNil())
			Expect(u.ID).To(Equal(id))
		}
		Expect(seen).To(HaveLen(logins))
	})

	It("validates until expiry", func() {
		id, _ := createUser(ctx, users, auth.RoleSeller)
		sid, err := sessions.Create(ctx, id, time.Hour)
		Expect(err).NotTo(HaveOccurred())

		u, err := sessions.Validate(ctx, sid)
		Expect(err).NotTo(HaveOccurred())
		Expect(u).NotTo(BeNil())
		Expect(u.ID).To(Equal(id))

		advance(time.Hour)
		u, err = sessions.Validate(ctx, sid)
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(BeNil())
	})

	It("stops validating when the user is deactivated", func() {
		id, _ := createUser(ctx, users, auth.RoleSeller)
		sid, err := sessions.Create(ctx, id, time.Hour)
		Expect(err).NotTo(HaveOccurred())

		Expect(users.SetActive(ctx, id, false)).To(Succeed())
		u, err := sessions.Validate(ctx, sid)
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(BeNil())

		var count int
		Expect(testPool.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE id = $1`, sid).Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1), "session row is untouched")
	})

	It("deletes idempotently", func() {
		id, _ := createUser(ctx, users, auth.RoleSeller)
		sid, err := sessions.Create(ctx, id, time.Hour)
		Expect(err).NotTo(HaveOccurred())

		Expect(sessions.Delete(ctx, sid)).To(Succeed())
		Expect(sessions.Delete(ctx, sid)).To(Succeed())
		u, err := sessions.Validate(ctx, sid)
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(BeNil())
	})

	It("purges only expired sessions", func() {
		id, _ := createUser(ctx, users, auth.RoleSeller)
		_, err := sessions.Create(ctx, id, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		live, err := sessions.Create(ctx, id, 2*time.Hour)
		Expect(err).NotTo(HaveOccurred())

		advance(time.Hour)
		n, err := sessions.DeleteExpired(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">=", 1))

		u, err := sessions.Validate(ctx, live)
		Expect(err).NotTo(HaveOccurred())
		Expect(u).NotTo(BeNil())
	})
})
