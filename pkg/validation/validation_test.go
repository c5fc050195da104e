package validation

import "testing"

func TestValidateStreamID(t *testing.T) {
	if err := ValidateStreamID(42); err != nil {
		t.Fatalf("expected 42 to be valid, got: %v", err)
	}
	if err := ValidateStreamID(0); err == nil {
		t.Fatal("expected 0 to be invalid")
	}
	if err := ValidateStreamID(-7); err == nil {
		t.Fatal("expected negative id to be invalid")
	}
}

func TestValidateUserID(t *testing.T) {
	valid := []string{"", "creator-17", "user_42", "ABC123"}
	for _, id := range valid {
		if err := ValidateUserID(id); err != nil {
			t.Errorf("expected %q to be valid, got: %v", id, err)
		}
	}

	invalid := []string{"has space", "semi;colon", "tab\tchar"}
	for _, id := range invalid {
		if err := ValidateUserID(id); err == nil {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestValidateNonEmptyString(t *testing.T) {
	if err := ValidateNonEmptyString("value", "field"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateNonEmptyString("   ", "field"); err == nil {
		t.Fatal("expected whitespace-only string to be invalid")
	}
}
