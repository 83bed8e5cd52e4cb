// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/internal/auth/postgres"
)

var _ = Describe("postgres.Store", func() {
	var (
		ctx context.Context
		s   *postgres.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateUsers(ctx)
		s = postgres.NewStore(testPool)
	})

	It("assigns ids and enforces email uniqueness", func() {
		a, err := s.AddUser(ctx, "a@x.com", []byte("hash"))
		Expect(err).NotTo(HaveOccurred())
		Expect(a.ID).To(BeNumerically(">", 0))

		_, err = s.AddUser(ctx, "a@x.com", []byte("other"))
		Expect(err).To(MatchError(auth.ErrDuplicateEmail))

		var count int
		Expect(testPool.QueryRow(ctx, `SELECT count(*) FROM users WHERE email = $1`, "a@x.com").Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1))
	})

	It("finds by every lookup key and round-trips nullable fields", func() {
		user, err := s.AddUser(ctx, "a@x.com", []byte("hash"))
		Expect(err).NotTo(HaveOccurred())

		exp := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
		Expect(s.UpdateUser(ctx, user.ID, auth.SetSessionToken("sess", &exp)...)).To(Succeed())
		Expect(s.UpdateUser(ctx, user.ID, auth.SetResetToken("reset", nil)...)).To(Succeed())

		for _, c := range []auth.Criterion{
			auth.ByID(user.ID), auth.ByEmail("a@x.com"), auth.BySessionToken("sess"),
			auth.ByResetToken("reset"), auth.ByHashedPassword([]byte("hash")),
		} {
			got, err := s.FindUserBy(ctx, c)
			Expect(err).NotTo(HaveOccurred(), c.Field.String())
			Expect(got.ID).To(Equal(user.ID))
		}

		got, err := s.FindUserBy(ctx, auth.ByID(user.ID))
		Expect(err).NotTo(HaveOccurred())
		Expect(got.SessionExpiresAt).NotTo(BeNil())
		Expect(got.SessionExpiresAt.Equal(exp)).To(BeTrue())
		Expect(got.ResetExpiresAt).To(BeNil())
		Expect(got.UpdatedAt).To(BeTemporally(">=", got.CreatedAt))

		Expect(s.UpdateUser(ctx, user.ID, auth.ClearSessionToken()...)).To(Succeed())
		_, err = s.FindUserBy(ctx, auth.BySessionToken("sess"))
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("reports missing rows and token collisions", func() {
		Expect(s.UpdateUser(ctx, 404, auth.ClearSessionToken()...)).To(MatchError(auth.ErrNotFound))

		a, err := s.AddUser(ctx, "a@x.com", []byte("h"))
		Expect(err).NotTo(HaveOccurred())
		b, err := s.AddUser(ctx, "b@x.com", []byte("h"))
		Expect(err).NotTo(HaveOccurred())

		Expect(s.UpdateUser(ctx, a.ID, auth.SetResetToken("shared", nil)...)).To(Succeed())
		Expect(s.UpdateUser(ctx, b.ID, auth.SetResetToken("shared", nil)...)).NotTo(Succeed())
		Expect(s.UpdateUser(ctx, b.ID, auth.SetEmail("a@x.com"))).To(MatchError(auth.ErrDuplicateEmail))
	})

	It("lets exactly one concurrent registration win", func() {
		const workers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if _, err := s.AddUser(ctx, "race@x.com", []byte("h")); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else {
					Expect(err).To(MatchError(auth.ErrDuplicateEmail))
				}
			}()
		}
		wg.Wait()
		Expect(wins).To(Equal(1))
	})
})

var _ = Describe("SessionManager on postgres", func() {
	var (
		ctx context.Context
		mgr *auth.SessionManager
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateUsers(ctx)
		hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1})
		Expect(err).NotTo(HaveOccurred())
		mgr, err = auth.NewSessionManager(postgres.NewStore(testPool), hasher)
		Expect(err).NotTo(HaveOccurred())
	})

	It("walks the registration, session and reset lifecycle", func() {
		_, err := mgr.RegisterUser(ctx, "a@x.com", "pw1")
		Expect(err).NotTo(HaveOccurred())
		_, err = mgr.RegisterUser(ctx, "a@x.com", "pw2")
		Expect(err).To(MatchError(auth.ErrAlreadyExists))
		Expect(mgr.ValidLogin(ctx, "a@x.com", "pw1")).To(BeTrue())

		t1, ok := mgr.CreateSession(ctx, "a@x.com")
		Expect(ok).To(BeTrue())
		user, ok := mgr.GetUserFromSession(ctx, t1)
		Expect(ok).To(BeTrue())
		Expect(user.Email).To(Equal("a@x.com"))

		t2, ok := mgr.CreateSession(ctx, "a@x.com")
		Expect(ok).To(BeTrue())
		Expect(t2).NotTo(Equal(t1))
		_, ok = mgr.GetUserFromSession(ctx, t1)
		Expect(ok).To(BeFalse())

		Expect(mgr.DestroySession(ctx, user.ID)).To(Succeed())
		Expect(mgr.DestroySession(ctx, user.ID)).To(Succeed())
		_, ok = mgr.GetUserFromSession(ctx, t2)
		Expect(ok).To(BeFalse())

		r1, err := mgr.GetResetToken(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.UpdatePassword(ctx, r1, "pw3")).To(Succeed())
		Expect(mgr.ValidLogin(ctx, "a@x.com", "pw1")).To(BeFalse())
		Expect(mgr.ValidLogin(ctx, "a@x.com", "pw3")).To(BeTrue())
		Expect(mgr.UpdatePassword(ctx, r1, "pw4")).To(MatchError(auth.ErrNotFound))
	})
})
