package intent

import "testing"

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("transfer")
	if !ok {
		t.Fatalf("transfer must be a known kind")
	}
	if k != KindTransfer {
		t.Fatalf("kind = %q, want %q", k, KindTransfer)
	}

	if _, ok := ParseKind("buy_bonds"); ok {
		t.Fatalf("unknown kind must not parse")
	}
	if _, ok := ParseKind(""); ok {
		t.Fatalf("empty kind must not parse")
	}
}

func TestKindIsAdmin(t *testing.T) {
	adminKinds := []Kind{
		KindAdminApprove, KindAdminReject, KindAdminAdjustBalance,
		KindAdminBroadcast, KindAdminStats, KindAdminHistory,
	}
	for _, k := range adminKinds {
		if !k.IsAdmin() {
			t.Fatalf("%q must require admin rights", k)
		}
	}

	userKinds := []Kind{
		KindRegister, KindCheckBalance, KindRequestWithdrawal,
		KindTransfer, KindSearchRecipient,
	}
	for _, k := range userKinds {
		if k.IsAdmin() {
			t.Fatalf("%q must not require admin rights", k)
		}
	}
}
