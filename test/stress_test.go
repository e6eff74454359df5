package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"projectmatch/application"
	"projectmatch/proposal"
	"projectmatch/test/actors"
	"projectmatch/test/chaos"
	"projectmatch/test/infra"
	"projectmatch/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 6, "students and proposers per role")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

// TestMatchingConcurrency floods the proposal and application services with
// concurrent actors and checks the platform invariants on a timer: panel
// sizes, pending review loads, seat accounting, the application cap and the
// single-selection rule. A chaos goroutine kills random backends along the
// way to prove each operation commits or rolls back as a unit.
func TestMatchingConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Skipf("no Docker and no local PostgreSQL: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)

	proposalSvc := proposal.NewService(pool, proposal.NewRepository(pool))
	proposalQueries := proposal.NewQueries(pool)
	applicationSvc := application.NewService(pool, application.NewRepository(pool))
	applicationQueries := application.NewQueries(pool)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < 2; i++ {
		g.Go(func() error { return actors.Proposer(ctx2, proposalSvc, seedData.faculty, stop) })
	}
	for _, facultyID := range seedData.faculty {
		id := facultyID
		g.Go(func() error { return actors.Reviewer(ctx2, proposalSvc, proposalQueries, id, stop) })
		g.Go(func() error { return actors.Selector(ctx2, applicationSvc, applicationQueries, id, stop) })
	}
	for _, studentID := range seedData.students {
		id := studentID
		g.Go(func() error { return actors.Applicant(ctx2, applicationSvc, proposalQueries, id, stop) })
	}

	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	faculty  []string
	students []string
}

// mustSeed provisions one research area with enough faculty that every
// proposer still leaves a ring of at least five peers, plus a population of
// students to race over seats.
func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs

	run := time.Now().UnixNano()
	for i := 0; i < 9; i++ {
		var id string
		err := pool.QueryRow(ctx,
			`INSERT INTO users (email, full_name, password_hash, role, research_area)
             VALUES ($1, $2, 'stress', 'faculty', 'distributed systems') RETURNING id`,
			fmt.Sprintf("faculty%d-%d@stress.test", i, run),
			fmt.Sprintf("Faculty %d", i),
		).Scan(&id)
		if err != nil {
			t.Fatalf("seed faculty %d: %v", i, err)
		}
		s.faculty = append(s.faculty, id)
	}

	for i := 0; i < *flConcurrency; i++ {
		var id string
		err := pool.QueryRow(ctx,
			`INSERT INTO users (email, full_name, password_hash, role)
             VALUES ($1, $2, 'stress', 'student') RETURNING id`,
			fmt.Sprintf("student%d-%d@stress.test", i, run),
			fmt.Sprintf("Student %d", i),
		).Scan(&id)
		if err != nil {
			t.Fatalf("seed student %d: %v", i, err)
		}
		s.students = append(s.students, id)
	}

	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"proposals", `SELECT id, owner_id, status, approvals, seat_capacity, seats_remaining FROM proposals ORDER BY created_at DESC LIMIT 50`},
		{"reviews", `SELECT proposal_id, reviewer_id, decision, created_at FROM reviews ORDER BY created_at DESC LIMIT 50`},
		{"applications", `SELECT id, student_id, proposal_id, status, updated_at FROM applications ORDER BY updated_at DESC LIMIT 50`},
		{"faculty_load", `SELECT id, pending_reviews FROM users WHERE role = 'faculty' ORDER BY pending_reviews DESC LIMIT 20`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
