package policy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "policy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenStoreSeedsDefaultProfile(t *testing.T) {
	s := openTestStore(t)

	profiles, err := s.ListProfiles()
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "standard", profiles[0].Name)
	assert.True(t, profiles[0].IsActive)
	assert.True(t, profiles[0].IsDefault)

	rules, err := s.ListRules(profiles[0].ID)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, OpFileReadAll, rules[0].OperationType)
	assert.Equal(t, PatternSubpath, rules[0].PatternType)
	assert.Equal(t, OpNetworkOutbound, rules[1].OperationType)
	assert.Equal(t, OpSystemInfoRead, rules[2].OperationType)
}

func TestGetActiveProfile(t *testing.T) {
	s := openTestStore(t)

	active, err := s.GetActiveProfile()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "standard", active.Name)

	_, err = s.db.Exec("UPDATE sandbox_profiles SET is_active = 0")
	require.NoError(t, err)

	active, err = s.GetActiveProfile()
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestListRulesPreservesInsertionOrder(t *testing.T) {
	s := openTestStore(t)

	res, err := s.db.Exec("INSERT INTO sandbox_profiles (name) VALUES ('ordered')")
	require.NoError(t, err)
	profileID, err := res.LastInsertId()
	require.NoError(t, err)

	values := []string{"/a", "/b", "/c"}
	for _, v := range values {
		_, err := s.db.Exec(
			"INSERT INTO sandbox_rules (profile_id, operation_type, pattern_type, pattern_value) VALUES (?, 'file_read_all', 'subpath', ?)",
			profileID, v)
		require.NoError(t, err)
	}

	rules, err := s.ListRules(profileID)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	for i, v := range values {
		assert.Equal(t, v, rules[i].PatternValue)
	}
}

func TestRecordAndListViolations(t *testing.T) {
	s := openTestStore(t)

	active, err := s.GetActiveProfile()
	require.NoError(t, err)
	require.NotNil(t, active)

	runID := "2f1c9a1e-run"
	pattern := "/etc/shadow"
	process := "curl"
	pid := int64(4242)
	err = s.RecordViolation(Violation{
		ProfileID:     &active.ID,
		RunID:         &runID,
		OperationType: string(OpFileReadAll),
		PatternValue:  &pattern,
		ProcessName:   &process,
		PID:           &pid,
	})
	require.NoError(t, err)

	violations, err := s.ListViolations(10)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	v := violations[0]
	assert.Equal(t, string(OpFileReadAll), v.OperationType)
	require.NotNil(t, v.PatternValue)
	assert.Equal(t, "/etc/shadow", *v.PatternValue)
	require.NotNil(t, v.RunID)
	assert.Equal(t, runID, *v.RunID)
	require.NotNil(t, v.PID)
	assert.Equal(t, pid, *v.PID)
	assert.False(t, v.DeniedAt.IsZero())
}

func TestCascadeDeleteRemovesRules(t *testing.T) {
	s := openTestStore(t)

	res, err := s.db.Exec("INSERT INTO sandbox_profiles (name) VALUES ('doomed')")
	require.NoError(t, err)
	profileID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = s.db.Exec(
		"INSERT INTO sandbox_rules (profile_id, operation_type, pattern_type, pattern_value) VALUES (?, 'file_read_all', 'subpath', '/x')",
		profileID)
	require.NoError(t, err)

	_, err = s.db.Exec("DELETE FROM sandbox_profiles WHERE id = ?", profileID)
	require.NoError(t, err)

	rules, err := s.ListRules(profileID)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
