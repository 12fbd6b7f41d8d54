package transaction

import "testing"

func TestMapGatewayStatus(t *testing.T) {
	if MapGatewayStatus("captured") != StatusCompleted {
		t.Fatal("expected captured to map to completed")
	}
	for _, s := range []string{"created", "authorized", "refunded", "failed", "", "CAPTURED"} {
		if MapGatewayStatus(s) != StatusFailed {
			t.Fatalf("expected %q to map to failed", s)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	cases := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, c := range cases {
		tx := &Transaction{Status: c.status}
		if tx.IsTerminal() != c.terminal {
			t.Fatalf("status %s: expected terminal=%v", c.status, c.terminal)
		}
	}
}

func TestCreditsWallet(t *testing.T) {
	if !(&Transaction{Kind: KindWalletTopup}).CreditsWallet() {
		t.Fatal("expected wallet_topup to credit wallet")
	}
	for _, k := range []Kind{KindDebit, KindCredit, KindRefund, KindConsultationFee, KindPrescriptionFee, KindLabFee} {
		if (&Transaction{Kind: k}).CreditsWallet() {
			t.Fatalf("did not expect kind %s to credit wallet", k)
		}
	}
}

func TestJSONRawMessageScan(t *testing.T) {
	var j JSONRawMessage
	if err := j.Scan([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(j) != `{"a":1}` {
		t.Fatalf("unexpected value: %s", j)
	}

	if err := j.Scan(nil); err != nil {
		t.Fatalf("unexpected error scanning nil: %v", err)
	}
	if j != nil {
		t.Fatalf("expected nil after scanning NULL, got %s", j)
	}

	if err := j.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
