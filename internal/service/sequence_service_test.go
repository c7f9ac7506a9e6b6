package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/testutil"
)

func createConfig(t *testing.T, h *harness, req CreateSequenceConfigRequest) *SequenceConfigResponse {
	t.Helper()
	cfg, err := h.sequences.CreateConfig(context.Background(), "", req)
	require.NoError(t, err)
	return cfg
}

func TestGenerateSequenceIncrements(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pumps := testutil.CreateCategory(t, h.db, "Pumps")

	cfg := createConfig(t, h, CreateSequenceConfigRequest{
		CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}",
	})
	assert.Equal(t, 0, cfg.CurrentCounter)
	assert.Equal(t, 1, cfg.StartingNumber)
	assert.True(t, cfg.Active)

	first, err := h.sequences.GenerateSequence(ctx, GenerateSequenceRequest{CategoryID: pumps.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "001-PUMPS", first.Sequence)
	assert.Equal(t, 1, first.SequenceNumber)
	assert.False(t, first.Fallback)

	second, err := h.sequences.GenerateSequence(ctx, GenerateSequenceRequest{CategoryID: pumps.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "002-PUMPS", second.Sequence)

	got, err := h.sequences.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentCounter)
}

func TestGenerateSequenceStartingNumber(t *testing.T) {
	h := newHarness(t)
	pumps := testutil.CreateCategory(t, h.db, "Pumps")
	createConfig(t, h, CreateSequenceConfigRequest{
		CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{prefix}-{category}-{sequence}", StartingNumber: intPtr(42),
	})

	got, err := h.sequences.GenerateSequence(context.Background(), GenerateSequenceRequest{CategoryID: pumps.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "PMP-PUMPS-042", got.Sequence)
}

func TestGenerateSequenceSubcategoryFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pumps := testutil.CreateCategory(t, h.db, "Pumps")
	valves := testutil.CreateSubcategory(t, h.db, pumps.ID, "Valves")
	subID := valves.ID.String()

	createConfig(t, h, CreateSequenceConfigRequest{
		CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}-{subcategory}",
	})

	got, err := h.sequences.GenerateSequence(ctx, GenerateSequenceRequest{CategoryID: pumps.ID.String(), SubcategoryID: &subID})
	require.NoError(t, err)
	assert.Equal(t, "001-PUMPS-VALVES", got.Sequence)
	assert.True(t, got.Fallback)

	createConfig(t, h, CreateSequenceConfigRequest{
		CategoryID: pumps.ID.String(), SubcategoryID: &subID, Prefix: "VLV", Template: "{prefix}-{category}-{sequence}",
	})

	got, err = h.sequences.GenerateSequence(ctx, GenerateSequenceRequest{CategoryID: pumps.ID.String(), SubcategoryID: &subID})
	require.NoError(t, err)
	assert.Equal(t, "VLV-PUMPS-001", got.Sequence)
	assert.False(t, got.Fallback)

	// The category-wide counter is untouched by the subcategory config.
	got, err = h.sequences.GenerateSequence(ctx, GenerateSequenceRequest{CategoryID: pumps.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "002-PUMPS", got.Sequence)
}

func TestGenerateSequenceWithoutConfig(t *testing.T) {
	h := newHarness(t)
	pumps := testutil.CreateCategory(t, h.db, "Pumps")

	_, err := h.sequences.GenerateSequence(context.Background(), GenerateSequenceRequest{CategoryID: pumps.ID.String()})
	assert.True(t, apperror.Is(err, apperror.KindNoSequenceConfig))
}

func TestGenerateSequenceRejectsForeignSubcategory(t *testing.T) {
	h := newHarness(t)
	pumps := testutil.CreateCategory(t, h.db, "Pumps")
	fans := testutil.CreateCategory(t, h.db, "Fans")
	blades := testutil.CreateSubcategory(t, h.db, fans.ID, "Blades")
	subID := blades.ID.String()
	createConfig(t, h, CreateSequenceConfigRequest{CategoryID: pumps.ID.String(), Prefix: "P", Template: "{sequence}-{category}"})

	_, err := h.sequences.GenerateSequence(context.Background(), GenerateSequenceRequest{CategoryID: pumps.ID.String(), SubcategoryID: &subID})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestGenerateSequenceConcurrentCallersGetDistinctNumbers(t *testing.T) {
	h := newHarness(t)
	pumps := testutil.CreateCategory(t, h.db, "Pumps")
	createConfig(t, h, CreateSequenceConfigRequest{CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}"})

	const callers = 20
	var wg sync.WaitGroup
	results := make(chan string, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.sequences.GenerateSequence(context.Background(), GenerateSequenceRequest{CategoryID: pumps.ID.String()})
			if err != nil {
				errs <- err
				return
			}
			results <- got.Sequence
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := map[string]bool{}
	for s := range results {
		assert.False(t, seen[s], "sequence %s issued twice", s)
		seen[s] = true
	}
	assert.Len(t, seen, callers)
	assert.True(t, seen["001-PUMPS"])
	assert.True(t, seen["020-PUMPS"])
}

func TestCreateConfigRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pumps := testutil.CreateCategory(t, h.db, "Pumps")
	cat := pumps.ID.String()

	_, err := h.sequences.CreateConfig(ctx, "", CreateSequenceConfigRequest{CategoryID: cat, Prefix: "PMP", Template: "{sequence}"})
	assert.True(t, apperror.Is(err, apperror.KindInvalidTemplate))

	_, err = h.sequences.CreateConfig(ctx, "", CreateSequenceConfigRequest{CategoryID: cat, Prefix: "pmp", Template: "{sequence}-{category}"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = h.sequences.CreateConfig(ctx, "", CreateSequenceConfigRequest{CategoryID: cat, Prefix: "PMP", Template: "{sequence}-{category}", StartingNumber: intPtr(0)})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	createConfig(t, h, CreateSequenceConfigRequest{CategoryID: cat, Prefix: "PMP", Template: "{sequence}-{category}"})
	_, err = h.sequences.CreateConfig(ctx, "", CreateSequenceConfigRequest{CategoryID: cat, Prefix: "PMP", Template: "{category}-{sequence}"})
	assert.True(t, apperror.Is(err, apperror.KindConflict))
}

func TestResetSequence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pumps := testutil.CreateCategory(t, h.db, "Pumps")
	cfg := createConfig(t, h, CreateSequenceConfigRequest{CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}"})
	gen := GenerateSequenceRequest{CategoryID: pumps.ID.String()}

	for i := 0; i < 3; i++ {
		_, err := h.sequences.GenerateSequence(ctx, gen)
		require.NoError(t, err)
	}

	reset, err := h.sequences.ResetSequence(ctx, "", cfg.ID, ResetSequenceRequest{StartingNumber: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, reset.Warning)
	assert.Equal(t, 1, reset.Config.CurrentCounter)
	assert.Equal(t, 2, reset.Config.StartingNumber)

	got, err := h.sequences.GenerateSequence(ctx, gen)
	require.NoError(t, err)
	assert.Equal(t, "002-PUMPS", got.Sequence)

	reset, err = h.sequences.ResetSequence(ctx, "", cfg.ID, ResetSequenceRequest{StartingNumber: 10})
	require.NoError(t, err)
	assert.Empty(t, reset.Warning)

	got, err = h.sequences.GenerateSequence(ctx, gen)
	require.NoError(t, err)
	assert.Equal(t, "010-PUMPS", got.Sequence)

	_, err = h.sequences.ResetSequence(ctx, "", cfg.ID, ResetSequenceRequest{StartingNumber: 0})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestCounterRejectsDirectWrites(t *testing.T) {
	h := newHarness(t)
	pumps := testutil.CreateCategory(t, h.db, "Pumps")
	created := createConfig(t, h, CreateSequenceConfigRequest{CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}"})

	var cfg model.SequenceConfig
	require.NoError(t, h.db.First(&cfg, "id = ?", created.ID).Error)

	err := h.db.Model(&cfg).Update("current_counter", 50).Error
	assert.ErrorIs(t, err, model.ErrCounterWrite)

	require.NoError(t, h.db.Model(&cfg).Update("prefix", "PMX").Error)
}

func TestUpdateConfigReRendersExistingSequences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "dana", model.RoleDispatcher)
	pumps := testutil.CreateCategory(t, h.db, "Pumps")
	so := testutil.CreateSalesOrder(t, h.db, "SO-1", &pumps.ID, nil)
	cfg := createConfig(t, h, CreateSequenceConfigRequest{CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}"})

	good := testutil.CreateMachine(t, h.db, &so.ID, user.ID, true, "001-PUMPS")
	legacy := testutil.CreateMachine(t, h.db, &so.ID, user.ID, true, "007-PUMPS")
	junk := testutil.CreateMachine(t, h.db, &so.ID, user.ID, true, "HANDWRITTEN")

	resp, err := h.sequences.UpdateConfig(ctx, "", cfg.ID, UpdateSequenceConfigRequest{
		Template:       strPtr("{category}-{sequence}"),
		UpdateExisting: true,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Revalidation)
	assert.Equal(t, 2, resp.Revalidation.Updated)
	require.Len(t, resp.Revalidation.Unresolved, 1)
	assert.Equal(t, junk.ID.String(), resp.Revalidation.Unresolved[0].MachineID)

	reloaded := testutil.ReloadMachine(t, h.db, good.ID)
	assert.Equal(t, "PUMPS-001", reloaded.Sequence)
	require.NotNil(t, reloaded.SequenceNumber)
	assert.Equal(t, 1, *reloaded.SequenceNumber)
	assert.True(t, reloaded.IsApproved, "re-rendering does not reopen approval")

	assert.Equal(t, "PUMPS-007", testutil.ReloadMachine(t, h.db, legacy.ID).Sequence)
	assert.Equal(t, "HANDWRITTEN", testutil.ReloadMachine(t, h.db, junk.ID).Sequence)
}

func TestUpdateConfigLeavesSequencesWhenNotAsked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "dana")
	pumps := testutil.CreateCategory(t, h.db, "Pumps")
	so := testutil.CreateSalesOrder(t, h.db, "SO-1", &pumps.ID, nil)
	cfg := createConfig(t, h, CreateSequenceConfigRequest{CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}"})
	m := testutil.CreateMachine(t, h.db, &so.ID, user.ID, true, "001-PUMPS")

	resp, err := h.sequences.UpdateConfig(ctx, "", cfg.ID, UpdateSequenceConfigRequest{Template: strPtr("{category}-{sequence}")})
	require.NoError(t, err)
	assert.Nil(t, resp.Revalidation)
	assert.Equal(t, "{category}-{sequence}", resp.Config.Template)
	assert.Equal(t, "001-PUMPS", testutil.ReloadMachine(t, h.db, m.ID).Sequence)

	report, err := h.sequences.CheckSequences(ctx, testutil.ParseID(t, cfg.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Len(t, report.Invalid, 1)
}

func TestDeleteConfig(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "dana")
	pumps := testutil.CreateCategory(t, h.db, "Pumps")
	so := testutil.CreateSalesOrder(t, h.db, "SO-1", &pumps.ID, nil)

	unused := createConfig(t, h, CreateSequenceConfigRequest{CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}"})
	resp, err := h.sequences.DeleteConfig(ctx, "", unused.ID)
	require.NoError(t, err)
	assert.True(t, resp.Deleted)
	_, err = h.sequences.GetConfig(ctx, unused.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	used := createConfig(t, h, CreateSequenceConfigRequest{CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}"})
	issued, err := h.sequences.GenerateSequence(ctx, GenerateSequenceRequest{CategoryID: pumps.ID.String()})
	require.NoError(t, err)
	m := testutil.CreateMachine(t, h.db, &so.ID, user.ID, true, issued.Sequence)
	require.NoError(t, h.db.Model(&model.Machine{}).Where("id = ?", m.ID).Update("sequence_config_id", used.ID).Error)

	resp, err = h.sequences.DeleteConfig(ctx, "", used.ID)
	require.NoError(t, err)
	assert.False(t, resp.Deleted)
	assert.True(t, resp.Disabled)

	got, err := h.sequences.GetConfig(ctx, used.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = h.sequences.GenerateSequence(ctx, GenerateSequenceRequest{CategoryID: pumps.ID.String()})
	assert.True(t, apperror.Is(err, apperror.KindNoSequenceConfig))

	// Sequences drawn from a disabled config still validate, flagged as historical.
	check, err := h.sequences.ValidateSequence(ctx, ValidateSequenceRequest{Sequence: issued.Sequence, CategoryID: pumps.ID.String()})
	require.NoError(t, err)
	assert.True(t, check.Valid)
	assert.True(t, check.Historical)

	// The scope is free for a new active config.
	createConfig(t, h, CreateSequenceConfigRequest{CategoryID: pumps.ID.String(), Prefix: "PMP", Template: "{category}-{sequence}"})
}

func TestValidateSequenceSchemes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	heavy := testutil.CreateCategory(t, h.db, "Pumps (Heavy)")
	createConfig(t, h, CreateSequenceConfigRequest{CategoryID: heavy.ID.String(), Prefix: "PH", Template: "{sequence}-{category}"})

	tests := []struct {
		candidate string
		valid     bool
		scheme    string
	}{
		{"001-PUMPS-(HEAVY)", true, "current"},
		{"001-PUMPS-HEAVY", true, "legacy"},
		{"PUMPS-HEAVY-001", false, ""},
		{"ABC-PUMPS-HEAVY", false, ""},
	}
	for _, tt := range tests {
		got, err := h.sequences.ValidateSequence(ctx, ValidateSequenceRequest{Sequence: tt.candidate, CategoryID: heavy.ID.String()})
		require.NoError(t, err)
		assert.Equal(t, tt.valid, got.Valid, tt.candidate)
		assert.Equal(t, tt.scheme, got.Scheme, tt.candidate)
		assert.False(t, got.Historical, tt.candidate)
	}
}
