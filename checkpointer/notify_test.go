package checkpointer

import "testing"

func TestBuildStructuredData_Ordering(t *testing.T) {
	got := buildStructuredData("cndp", map[string]string{
		"deadman":   "tok",
		"status":    "success",
		"job":       "event-checkpoint",
		"service":   "event-logs",
		"first_run": "false",
	})
	want := `[cndp job="event-checkpoint" service="event-logs" status="success" first_run="false" deadman="tok"]`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestBuildStructuredData_SkipsEmptyValues(t *testing.T) {
	got := buildStructuredData("cndp", map[string]string{
		"status": "failed",
		"job":    "",
	})
	want := `[cndp status="failed"]`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestBuildStructuredData_EscapesAndSortsExtras(t *testing.T) {
	got := buildStructuredData("cndp", map[string]string{
		"zed":    `quote " and bracket ]`,
		"alpha":  "x",
		"status": "success",
	})
	want := `[cndp status="success" alpha="x" zed="quote \" and bracket \]"]`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestSanitizeSyslogToken(t *testing.T) {
	if got := sanitizeSyslogToken("  "); got != "-" {
		t.Fatalf("blank: got %q", got)
	}
	if got := sanitizeSyslogToken("my host"); got != "my_host" {
		t.Fatalf("spaces: got %q", got)
	}
}
