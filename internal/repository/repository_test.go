package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/regtools/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "regtools-test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})

	t.Run("SaveAndGetProfile", func(t *testing.T) {
		p := &domain.ClientProfile{
			ID:                 "profile-001",
			ClientID:           "client-001",
			Name:               "Client A",
			Occupation:         "Salarié",
			RiskLevel:          domain.RiskLevelEnhanced,
			Operation:          domain.OperationSubscription,
			InsuredCapital:     domain.Float(150001),
			WatchlistCountry:   true,
			BeneficiaryChanges: domain.Int(2),
		}

		require.NoError(t, repo.SaveProfile(ctx, tenantID, p))

		got, err := repo.GetProfile(ctx, tenantID, p.ID)
		require.NoError(t, err)

		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, tenantID, got.TenantID)
		assert.Equal(t, "Salarié", got.Occupation)
		assert.Equal(t, domain.RiskLevelEnhanced, got.RiskLevel)
		require.NotNil(t, got.InsuredCapital)
		assert.Equal(t, 150001.0, *got.InsuredCapital)
		assert.Nil(t, got.Premium)
		assert.True(t, got.WatchlistCountry)
		require.NotNil(t, got.BeneficiaryChanges)
		assert.Equal(t, 2, *got.BeneficiaryChanges)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("SaveProfileUpserts", func(t *testing.T) {
		p := &domain.ClientProfile{ID: "profile-upsert", Occupation: "élève"}
		require.NoError(t, repo.SaveProfile(ctx, tenantID, p))

		p.Occupation = "médecin"
		require.NoError(t, repo.SaveProfile(ctx, tenantID, p))

		got, err := repo.GetProfile(ctx, tenantID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "médecin", got.Occupation)
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetProfile(ctx, "tenant-002", "profile-001")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		err := repo.SaveProfile(ctx, "", &domain.ClientProfile{ID: "p"})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = repo.GetProfile(ctx, "", "profile-001")
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = repo.ListProfiles(ctx, "", 10)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("RequiresProfileID", func(t *testing.T) {
		err := repo.SaveProfile(ctx, tenantID, &domain.ClientProfile{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("GetProfilesByClient", func(t *testing.T) {
		now := time.Now().UTC()
		for i, age := range []time.Duration{time.Hour, 24 * time.Hour, 5 * 365 * 24 * time.Hour} {
			p := &domain.ClientProfile{
				ID:        "history-" + string(rune('a'+i)),
				ClientID:  "client-history",
				Operation: domain.OperationSubscription,
				CreatedAt: now.Add(-age),
			}
			require.NoError(t, repo.SaveProfile(ctx, tenantID, p))
		}

		since := now.Add(-domain.ActiveContractsWindow)
		profiles, err := repo.GetProfilesByClient(ctx, tenantID, "client-history", since)
		require.NoError(t, err)
		require.Len(t, profiles, 2)
		// Newest first
		assert.Equal(t, "history-a", profiles[0].ID)

		profiles, err = repo.GetProfilesByClient(ctx, "tenant-002", "client-history", since)
		require.NoError(t, err)
		assert.Empty(t, profiles)

		_, err = repo.GetProfilesByClient(ctx, tenantID, "", since)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("ListProfiles", func(t *testing.T) {
		profiles, err := repo.ListProfiles(ctx, tenantID, 2)
		require.NoError(t, err)
		assert.Len(t, profiles, 2)

		profiles, err = repo.ListProfiles(ctx, tenantID, 0)
		require.NoError(t, err)
		assert.Len(t, profiles, 5)
	})

	t.Run("SaveAndGetEvaluation", func(t *testing.T) {
		eval := &domain.Evaluation{
			ID:        "eval-001",
			ProfileID: "profile-001",
			Status:    domain.StatusAlert,
			Verdict:   "high",
			Timestamp: time.Now().UTC(),
			Report: domain.EvaluationReport{
				CatalogueVersion: "test",
				RiskGroup:        domain.RiskGroupMedium,
				Triggered:        true,
				TriggeredCount:   1,
				MaxSeverity:      "high",
				Results: []domain.IndicatorResult{
					{
						ID:        2,
						Triggered: true,
						Severity:  domain.SeverityHigh,
						Outcome:   domain.OutcomeTriggered,
						Value:     domain.Float(150001),
						Threshold: domain.Float(150000),
					},
				},
			},
			Metadata: domain.EvaluationMetadata{TraceID: "trace-001", IndicatorsEvaluated: 10},
		}

		require.NoError(t, repo.SaveEvaluation(ctx, tenantID, eval))

		got, err := repo.GetEvaluation(ctx, tenantID, eval.ID)
		require.NoError(t, err)

		assert.Equal(t, eval.ID, got.ID)
		assert.Equal(t, eval.Status, got.Status)
		assert.Equal(t, "high", got.Verdict)
		assert.Equal(t, "trace-001", got.Metadata.TraceID)
		require.Len(t, got.Report.Results, 1)
		assert.Equal(t, domain.SeverityHigh, got.Report.Results[0].Severity)
		require.NotNil(t, got.Report.Results[0].Threshold)
		assert.Equal(t, 150000.0, *got.Report.Results[0].Threshold)
	})

	t.Run("ListEvaluationsByProfile", func(t *testing.T) {
		eval := &domain.Evaluation{
			ID:        "eval-002",
			ProfileID: "profile-001",
			Status:    domain.StatusNoAlert,
			Verdict:   domain.VerdictOK,
			Timestamp: time.Now().UTC().Add(time.Minute),
		}
		require.NoError(t, repo.SaveEvaluation(ctx, tenantID, eval))

		evals, err := repo.ListEvaluationsByProfile(ctx, tenantID, "profile-001")
		require.NoError(t, err)
		require.Len(t, evals, 2)
		assert.Equal(t, "eval-002", evals[0].ID)

		evals, err = repo.ListEvaluationsByProfile(ctx, "tenant-002", "profile-001")
		require.NoError(t, err)
		assert.Empty(t, evals)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetProfile(ctx, tenantID, "nonexistent")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = repo.GetEvaluation(ctx, tenantID, "nonexistent")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, repo.rebind(tt.input))
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	assert.Equal(t, "SELECT ? FROM t", sqlite.rebind("SELECT ? FROM t"))
}

func TestDSN(t *testing.T) {
	t.Run("PostgresDefaults", func(t *testing.T) {
		dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "u", PostgresPassword: "p"})
		assert.Equal(t, "host=localhost port=5432 user=u password=p dbname=regtools sslmode=disable", dsn)
	})

	t.Run("PostgresExplicit", func(t *testing.T) {
		dsn := postgresDSN(domain.RepositoryConfig{
			PostgresHost:    "db",
			PostgresPort:    6543,
			PostgresDB:      "aml",
			PostgresSSLMode: "require",
		})
		assert.Contains(t, dsn, "host=db port=6543")
		assert.Contains(t, dsn, "dbname=aml sslmode=require")
	})

	t.Run("SQLite", func(t *testing.T) {
		assert.Contains(t, sqliteDSN(""), "file:./regtools.db?")
		assert.Contains(t, sqliteDSN("/tmp/x.db"), "busy_timeout(5000)")
	})
}
