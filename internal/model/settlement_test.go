package model

import "testing"

func TestSettlementStateMachine(t *testing.T) {
	valid := []struct{ from, to string }{
		{SettlementStatusRequested, SettlementStatusApproved},
		{SettlementStatusRequested, SettlementStatusRejected},
		{SettlementStatusApproved, SettlementStatusPaid},
	}
	for _, tc := range valid {
		if !SettlementCanTransitionTo(tc.from, tc.to) {
			t.Errorf("%s -> %s 应当合法", tc.from, tc.to)
		}
	}

	invalid := []struct{ from, to string }{
		{SettlementStatusRequested, SettlementStatusPaid}, // 不能跳过审批直接打款
		{SettlementStatusApproved, SettlementStatusRejected},
		{SettlementStatusApproved, SettlementStatusRequested},
		{SettlementStatusPaid, SettlementStatusRejected},
		{SettlementStatusPaid, SettlementStatusRequested},
		{SettlementStatusRejected, SettlementStatusApproved},
		{SettlementStatusRejected, SettlementStatusRequested},
	}
	for _, tc := range invalid {
		if SettlementCanTransitionTo(tc.from, tc.to) {
			t.Errorf("%s -> %s 不应合法", tc.from, tc.to)
		}
	}
}

func TestSignedAmount(t *testing.T) {
	if got := SignedAmount(MileageTypeEarn, 500); got != 500 {
		t.Errorf("EARN 应按原值计入，实际 %d", got)
	}
	if got := SignedAmount(MileageTypeUse, 500); got != -500 {
		t.Errorf("USE 应恒为扣减，实际 %d", got)
	}
	if got := SignedAmount(MileageTypeAdminAdjust, -300); got != -300 {
		t.Errorf("ADMIN_ADJUST 按带符号存储值计入，实际 %d", got)
	}
}
