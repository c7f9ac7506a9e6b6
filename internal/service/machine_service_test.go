package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/testutil"
)

func TestCreateMachineOpensCreationRequest(t *testing.T) {
	f := newApprovalFixture(t)
	soID := f.so.ID.String()

	res, err := f.machines.CreateMachine(context.Background(), viewerOf(f.dispatcher), CreateMachineRequest{
		SoID:         &soID,
		Location:     " Bay 4 ",
		DispatchDate: "2024-03-15",
		Metadata:     map[string]interface{}{"color": "blue"},
		Images:       []string{"front.jpg"},
		RequestNotes: "new build",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	assert.Equal(t, "Bay 4", res.Machine.Location)
	assert.False(t, res.Machine.IsApproved)
	assert.Equal(t, "SO-100", res.Machine.SoNumber)
	assert.Equal(t, "Pumps", res.Machine.CategoryName)
	assert.Equal(t, []string{"front.jpg"}, res.Machine.Images)
	assert.Empty(t, res.Machine.DispatchDate, "dispatch date waits for approval")

	require.NotNil(t, res.Request)
	assert.Equal(t, "CREATION", res.Request.ApprovalType)
	assert.Equal(t, model.ApprovalPending, res.Request.Status)
	assert.Equal(t, []string{model.RoleManager}, res.Request.ApproverRoles)
	assert.JSONEq(t, `{"dispatch_date":"2024-03-15"}`, string(res.Request.ProposedChanges))

	_, err = f.approvals.ApproveRequest(context.Background(), viewerOf(f.manager), res.Request.ID, ApproveRequestDTO{})
	require.NoError(t, err)
	m := testutil.ReloadMachine(t, f.db, testutil.ParseID(t, res.Machine.ID))
	assert.True(t, m.IsApproved)
	assert.Equal(t, "2024-03-15", m.DispatchDateString())
}

func TestCreateMachineValidation(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	v := viewerOf(f.dispatcher)
	missing := "00000000-0000-0000-0000-000000000001"

	_, err := f.machines.CreateMachine(ctx, v, CreateMachineRequest{Location: "x", Sequence: "001-PUMPS", AutoSequence: true})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.machines.CreateMachine(ctx, v, CreateMachineRequest{Location: "x", DispatchDate: "15.03.2024"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.machines.CreateMachine(ctx, v, CreateMachineRequest{Location: "x", SoID: &missing})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCreateMachineAutoSequenceWithoutConfig(t *testing.T) {
	f := newApprovalFixture(t)
	soID := f.so.ID.String()

	res, err := f.machines.CreateMachine(context.Background(), viewerOf(f.dispatcher), CreateMachineRequest{
		SoID: &soID, Location: "Bay 1", AutoSequence: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no sequence config")
	assert.JSONEq(t, `{}`, string(res.Request.ProposedChanges))
}

func TestCreateMachineAutoSequence(t *testing.T) {
	f := newApprovalFixture(t)
	createConfig(t, f.harness, CreateSequenceConfigRequest{CategoryID: f.category.ID.String(), Prefix: "PMP", Template: "{prefix}-{category}-{sequence}"})
	soID := f.so.ID.String()

	res, err := f.machines.CreateMachine(context.Background(), viewerOf(f.dispatcher), CreateMachineRequest{
		SoID: &soID, Location: "Bay 1", AutoSequence: true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Machine.Sequence)

	_, err = f.approvals.ApproveRequest(context.Background(), viewerOf(f.manager), res.Request.ID, ApproveRequestDTO{})
	require.NoError(t, err)
	got, err := f.machines.GetMachine(context.Background(), res.Machine.ID)
	require.NoError(t, err)
	assert.Equal(t, "PMP-PUMPS-001", got.Sequence)
	assert.True(t, got.IsApproved)
}

func TestCreateMachineManualSequenceWarning(t *testing.T) {
	f := newApprovalFixture(t)
	createConfig(t, f.harness, CreateSequenceConfigRequest{CategoryID: f.category.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}"})
	soID := f.so.ID.String()

	res, err := f.machines.CreateMachine(context.Background(), viewerOf(f.dispatcher), CreateMachineRequest{
		SoID: &soID, Location: "Bay 1", Sequence: "FREEFORM",
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "does not match")

	res, err = f.machines.CreateMachine(context.Background(), viewerOf(f.dispatcher), CreateMachineRequest{
		SoID: &soID, Location: "Bay 2", Sequence: "014-PUMPS",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestRequestEdit(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	approved := testutil.CreateMachine(t, f.db, &f.so.ID, f.dispatcher.ID, true, "")
	_, err := f.machines.RequestEdit(ctx, viewerOf(f.dispatcher), approved.ID.String(), RequestEditDTO{
		ProposedChanges: json.RawMessage(`{"location":"Dock 7"}`),
	})
	assert.True(t, apperror.Is(err, apperror.KindMachineLocked))

	_, err = f.machines.RequestEdit(ctx, viewerOf(f.manager), f.machine.ID.String(), RequestEditDTO{
		ProposedChanges: json.RawMessage(`{"location":"Dock 7"}`),
	})
	assert.True(t, apperror.Is(err, apperror.KindNotAuthorized))

	_, err = f.machines.RequestEdit(ctx, viewerOf(f.dispatcher), f.machine.ID.String(), RequestEditDTO{
		ProposedChanges: json.RawMessage(`{}`),
	})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	res, err := f.machines.RequestEdit(ctx, viewerOf(f.dispatcher), f.machine.ID.String(), RequestEditDTO{
		ProposedChanges: json.RawMessage(`{"location":"Dock 7","metadata":{"color":"green"}}`),
		ApproverRoles:   []string{"qa"},
	})
	require.NoError(t, err)
	assert.Equal(t, "EDIT", res.Request.ApprovalType)
	assert.Equal(t, []string{"qa"}, res.Request.ApproverRoles)
	assert.Equal(t, "Dock 1", res.Machine.Location)
}

func TestRequestDeletion(t *testing.T) {
	f := newApprovalFixture(t)
	approved := testutil.CreateMachine(t, f.db, &f.so.ID, f.dispatcher.ID, true, "")

	res, err := f.machines.RequestDeletion(context.Background(), viewerOf(f.dispatcher), approved.ID.String(), RequestDeletionDTO{Reason: "scrapped"})
	require.NoError(t, err)
	assert.Equal(t, "DELETION", res.Request.ApprovalType)
	assert.JSONEq(t, `{"reason":"scrapped"}`, string(res.Request.ProposedChanges))

	_, err = f.approvals.ApproveRequest(context.Background(), viewerOf(f.manager), res.Request.ID, ApproveRequestDTO{})
	require.NoError(t, err)
	_, err = f.machines.GetMachine(context.Background(), approved.ID.String())
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestOverrideSequenceReopensApproval(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	createConfig(t, f.harness, CreateSequenceConfigRequest{CategoryID: f.category.ID.String(), Prefix: "PMP", Template: "{sequence}-{category}"})
	approved := testutil.CreateMachine(t, f.db, &f.so.ID, f.dispatcher.ID, true, "001-PUMPS")

	res, err := f.machines.OverrideSequence(ctx, viewerOf(f.dispatcher), approved.ID.String(), OverrideSequenceRequest{
		Sequence: "050-PUMPS", RequestNotes: "matches plate",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.False(t, res.Machine.IsApproved)
	assert.Equal(t, "050-PUMPS", res.Machine.Sequence)
	assert.Nil(t, res.Machine.SequenceNumber)

	require.NotNil(t, res.Request)
	assert.Equal(t, "EDIT", res.Request.ApprovalType)
	assert.Equal(t, model.ApprovalPending, res.Request.Status)
	assert.JSONEq(t, `{"sequence":"050-PUMPS"}`, string(res.Request.ProposedChanges))

	var pending int64
	require.NoError(t, f.db.Model(&model.ApprovalRequest{}).
		Where("machine_id = ? AND status = ?", approved.ID, model.ApprovalPending).
		Count(&pending).Error)
	assert.Equal(t, int64(1), pending)

	_, err = f.approvals.ApproveRequest(ctx, viewerOf(f.manager), res.Request.ID, ApproveRequestDTO{})
	require.NoError(t, err)
	m := testutil.ReloadMachine(t, f.db, approved.ID)
	assert.True(t, m.IsApproved)
	assert.Equal(t, "050-PUMPS", m.Sequence)
}

func TestOverrideSequenceReusesPendingRequest(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	req := f.open(t, f.machine.ID, "CREATION", `{"location":"Dock 3","sequence":"OLD-1"}`)

	res, err := f.machines.OverrideSequence(ctx, viewerOf(f.dispatcher), f.machine.ID.String(), OverrideSequenceRequest{Sequence: "HAND-1"})
	require.NoError(t, err)
	require.NotNil(t, res.Request)
	assert.Equal(t, req.ID, res.Request.ID)
	assert.Equal(t, "HAND-1", res.Machine.Sequence)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no sequence config")

	pending, err := f.approvals.GetApprovalRequest(ctx, viewerOf(f.manager), req.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"location":"Dock 3","sequence":"HAND-1"}`, string(pending.ProposedChanges))
	require.Len(t, f.notifier.approverCalls(), 2)

	_, err = f.approvals.ApproveRequest(ctx, viewerOf(f.manager), req.ID, ApproveRequestDTO{})
	require.NoError(t, err)
	m := testutil.ReloadMachine(t, f.db, f.machine.ID)
	assert.True(t, m.IsApproved)
	assert.Equal(t, "HAND-1", m.Sequence)
	assert.Equal(t, "Dock 3", m.Location)
}

func TestOverrideSequenceClearsAutoSequence(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	req := f.open(t, f.machine.ID, "CREATION", `{"auto_sequence":true}`)

	_, err := f.machines.OverrideSequence(ctx, viewerOf(f.dispatcher), f.machine.ID.String(), OverrideSequenceRequest{Sequence: "HAND-7"})
	require.NoError(t, err)

	pending, err := f.approvals.GetApprovalRequest(ctx, viewerOf(f.manager), req.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sequence":"HAND-7"}`, string(pending.ProposedChanges))
}

func TestOverrideSequenceBlockedByPendingDeletion(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	del, err := f.machines.RequestDeletion(ctx, viewerOf(f.dispatcher), f.machine.ID.String(), RequestDeletionDTO{Reason: "duplicate entry"})
	require.NoError(t, err)

	_, err = f.machines.OverrideSequence(ctx, viewerOf(f.dispatcher), f.machine.ID.String(), OverrideSequenceRequest{Sequence: "HAND-2"})
	require.True(t, apperror.Is(err, apperror.KindDuplicatePendingRequest))
	appErr, _ := apperror.As(err)
	assert.Equal(t, del.Request.ID, appErr.Params["request_id"])

	m := testutil.ReloadMachine(t, f.db, f.machine.ID)
	assert.Empty(t, m.Sequence)
}

func TestOverrideSequenceBlockedByPendingOnApprovedMachine(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	approved := testutil.CreateMachine(t, f.db, &f.so.ID, f.dispatcher.ID, true, "001-PUMPS")

	del, err := f.machines.RequestDeletion(ctx, viewerOf(f.dispatcher), approved.ID.String(), RequestDeletionDTO{})
	require.NoError(t, err)

	_, err = f.machines.OverrideSequence(ctx, viewerOf(f.dispatcher), approved.ID.String(), OverrideSequenceRequest{Sequence: "002-PUMPS"})
	require.True(t, apperror.Is(err, apperror.KindDuplicatePendingRequest))
	appErr, _ := apperror.As(err)
	assert.Equal(t, del.Request.ID, appErr.Params["request_id"])

	m := testutil.ReloadMachine(t, f.db, approved.ID)
	assert.True(t, m.IsApproved)
	assert.Equal(t, "001-PUMPS", m.Sequence)
}

func TestOverrideSequenceAuthorization(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	approved := testutil.CreateMachine(t, f.db, &f.so.ID, f.dispatcher.ID, true, "001-PUMPS")

	_, err := f.machines.OverrideSequence(ctx, viewerOf(f.manager), approved.ID.String(), OverrideSequenceRequest{Sequence: "002-PUMPS"})
	assert.True(t, apperror.Is(err, apperror.KindNotAuthorized))

	_, err = f.machines.OverrideSequence(ctx, viewerOf(f.dispatcher), approved.ID.String(), OverrideSequenceRequest{Sequence: "001-PUMPS"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	res, err := f.machines.OverrideSequence(ctx, viewerOf(f.admin), approved.ID.String(), OverrideSequenceRequest{Sequence: "002-PUMPS"})
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID.String(), res.Request.RequestedBy)

	logs, _, err := f.audit.GetAuditLogs(ctx, model.ActionOverrideSequence, approved.ID.String(), 1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestListMachines(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	other := testutil.CreateUser(t, f.db, "otto", model.RoleDispatcher)
	approved := testutil.CreateMachine(t, f.db, &f.so.ID, other.ID, true, "777-PUMPS")

	list, total, err := f.machines.ListMachines(ctx, viewerOf(f.dispatcher), MachineListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	list, _, err = f.machines.ListMachines(ctx, viewerOf(f.dispatcher), MachineListFilter{IsApproved: "true"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, approved.ID.String(), list[0].ID)

	list, _, err = f.machines.ListMachines(ctx, viewerOf(f.dispatcher), MachineListFilter{Mine: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.machine.ID.String(), list[0].ID)

	list, _, err = f.machines.ListMachines(ctx, viewerOf(f.dispatcher), MachineListFilter{Search: "777"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, _, err = f.machines.ListMachines(ctx, viewerOf(f.dispatcher), MachineListFilter{IsApproved: "maybe"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}
