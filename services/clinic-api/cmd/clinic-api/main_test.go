package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicapi/libs/auth"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/storage"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	s, err := loadSettings()
	require.NoError(t, err)
	assert.Equal(t, "8080", s.Port)
	assert.True(t, s.memoryMode())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, s.KafkaBrokers)
	assert.Equal(t, "clinic.appointments.v1", s.KafkaTopic)
	assert.Equal(t, 24*time.Hour, s.AccessTTL)
	assert.Equal(t, 5, s.MaxLoginAttempts)
	assert.Equal(t, 15*time.Minute, s.LockoutWindow)
	assert.Equal(t, []string{"http://localhost:4200"}, s.CORSOrigins)
	assert.False(t, s.StrictReschedule)
}

func TestLoadSettingsReportsEveryProblem(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PORT", "99999")
	t.Setenv("LOCKOUT_TIME", "soon")

	_, err := loadSettings()
	require.Error(t, err)
	for _, key := range []string{"JWT_SECRET", "PORT", "LOCKOUT_TIME"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoadSettingsDurationsAcceptMilliseconds(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("RATE_LIMIT_WINDOW", "900000")

	s, err := loadSettings()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, s.RateLimitWindow)
}

func TestParseRole(t *testing.T) {
	id, err := parseRole(" Doctor ")
	require.NoError(t, err)
	assert.Equal(t, storage.RoleDoctorID, id)

	_, err = parseRole("janitor")
	assert.Error(t, err)
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	users := storage.NewMemoryUsers()
	s := settings{AdminDocument: "900", AdminPassword: "s3cret", BcryptRounds: 4}

	require.NoError(t, seedAdmin(ctx, users, s))
	require.NoError(t, seedAdmin(ctx, users, s))

	u, err := users.FindByDocument(ctx, "900")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Role)
	assert.True(t, auth.CheckPassword(u.PasswordHash, "s3cret"))
}

func TestHashPasswordCommand(t *testing.T) {
	t.Setenv("BCRYPT_ROUNDS", "4")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hash-password", "hunter2"})
	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.True(t, auth.CheckPassword(hash, "hunter2"))
}
