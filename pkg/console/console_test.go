package console

import "testing"

func TestFormatSuccessMessage(t *testing.T) {
	if got := FormatSuccessMessage("done"); got != "✓ done" {
		t.Errorf("FormatSuccessMessage() = %q, want %q", got, "✓ done")
	}
}

func TestFormatInfoMessage(t *testing.T) {
	if got := FormatInfoMessage("note"); got != "ℹ note" {
		t.Errorf("FormatInfoMessage() = %q, want %q", got, "ℹ note")
	}
}

func TestFormatWarningMessage(t *testing.T) {
	if got := FormatWarningMessage("careful"); got != "⚠ careful" {
		t.Errorf("FormatWarningMessage() = %q, want %q", got, "⚠ careful")
	}
}

func TestFormatErrorMessage(t *testing.T) {
	if got := FormatErrorMessage("broken"); got != "✗ broken" {
		t.Errorf("FormatErrorMessage() = %q, want %q", got, "✗ broken")
	}
}

func TestFormatErrorWithSuggestions(t *testing.T) {
	got := FormatErrorWithSuggestions("build failed", []string{"check scheme", "check destination"})
	want := "✗ build failed\n  - check scheme\n  - check destination"
	if got != want {
		t.Errorf("FormatErrorWithSuggestions() = %q, want %q", got, want)
	}
}

func TestFormatErrorWithSuggestionsEmpty(t *testing.T) {
	got := FormatErrorWithSuggestions("build failed", nil)
	if got != "✗ build failed" {
		t.Errorf("FormatErrorWithSuggestions() = %q, want %q", got, "✗ build failed")
	}
}

func TestFormatFileSizeBytes(t *testing.T) {
	if got := FormatFileSize(0); got != "0 B" {
		t.Errorf("FormatFileSize(0) = %q, want %q", got, "0 B")
	}
	if got := FormatFileSize(512); got != "512 B" {
		t.Errorf("FormatFileSize(512) = %q, want %q", got, "512 B")
	}
}

func TestFormatFileSizeKB(t *testing.T) {
	if got := FormatFileSize(2048); got != "2.0 KB" {
		t.Errorf("FormatFileSize(2048) = %q, want %q", got, "2.0 KB")
	}
}

func TestFormatFileSizeMB(t *testing.T) {
	if got := FormatFileSize(5 * 1024 * 1024); got != "5.0 MB" {
		t.Errorf("FormatFileSize(5MB) = %q, want %q", got, "5.0 MB")
	}
}

func TestFormatFileSizeGB(t *testing.T) {
	if got := FormatFileSize(3 * 1024 * 1024 * 1024); got != "3.0 GB" {
		t.Errorf("FormatFileSize(3GB) = %q, want %q", got, "3.0 GB")
	}
}

func TestFormatDurationMilliseconds(t *testing.T) {
	if got := FormatDuration(0.25); got != "250ms" {
		t.Errorf("FormatDuration(0.25) = %q, want %q", got, "250ms")
	}
}

func TestFormatDurationSeconds(t *testing.T) {
	if got := FormatDuration(12.3); got != "12.3s" {
		t.Errorf("FormatDuration(12.3) = %q, want %q", got, "12.3s")
	}
}

func TestFormatDurationMinutes(t *testing.T) {
	if got := FormatDuration(125); got != "2m5s" {
		t.Errorf("FormatDuration(125) = %q, want %q", got, "2m5s")
	}
}
