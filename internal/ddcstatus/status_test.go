package ddcstatus

import "testing"

func TestRangesAreCollisionFree(t *testing.T) {
	if EIO.IsDDC() {
		t.Fatalf("EIO should not be classified as a DDC range status")
	}
	if !EIO.IsErrno() {
		t.Fatalf("EIO should be classified as an errno range status")
	}
	if !Retries.IsDDC() {
		t.Fatalf("RETRIES should be classified as a DDC range status")
	}
	if Retries.IsErrno() {
		t.Fatalf("RETRIES should not be classified as an errno range status")
	}
	if OK.IsDDC() || OK.IsErrno() {
		t.Fatalf("OK should be in neither range")
	}
}

func TestIsNotError(t *testing.T) {
	for _, s := range []Status{ReportedUnsupported, DeterminedUnsupported, AllResponsesNull, NullResponse} {
		if !s.IsNotError() {
			t.Errorf("%s should be classified as not-an-error", s.Name())
		}
	}
	if Retries.IsNotError() {
		t.Errorf("RETRIES should be classified as an error")
	}
}

func TestNameAndDesc(t *testing.T) {
	if Retries.Name() != "RETRIES" {
		t.Errorf("Name() = %s, want RETRIES", Retries.Name())
	}
	if Retries.Desc() == "" {
		t.Errorf("Desc() should not be empty")
	}
	if EBUSY.Name() != "EBUSY" {
		t.Errorf("Name() = %s, want EBUSY", EBUSY.Name())
	}
}

func TestErrorInfoChaining(t *testing.T) {
	leaf := New(NullResponse, "write_read", "attempt 1")
	chained := NewChained(leaf, "retry_loop")
	if chained.Status != NullResponse {
		t.Errorf("chained status = %v, want %v", chained.Status, NullResponse)
	}
}

func TestSummarizeCausesCollapsesRuns(t *testing.T) {
	causes := []*ErrorInfo{
		New(NullResponse, "a", ""),
		New(NullResponse, "a", ""),
		New(NullResponse, "a", ""),
		New(DDCData, "a", ""),
	}
	lines := summarizeCauses(causes)
	want := []string{"NULL_RESPONSE(x3)", "DDC_DATA"}
	if len(lines) != len(want) {
		t.Fatalf("got %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestAllCausesShareNullResponseStatus(t *testing.T) {
	causes := []*ErrorInfo{
		New(NullResponse, "a", ""),
		New(NullResponse, "a", ""),
		New(NullResponse, "a", ""),
	}
	allSame := true
	for _, c := range causes {
		if c.Status != causes[0].Status {
			allSame = false
		}
	}
	if !allSame || causes[0].Status != NullResponse {
		t.Fatalf("expected all causes to share NULL_RESPONSE")
	}
}
